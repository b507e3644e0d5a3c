package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-dalil/internal/apperror"
)

type stubAuth map[string]*Principal

func (s stubAuth) Authenticate(_ context.Context, token string) (*Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, apperror.ErrUnauthenticated.WithMessage("invalid token")
}

type stubRoles map[string]bool

func (s stubRoles) HasRole(_ context.Context, userID, role string) (bool, error) {
	if userID == "broken" {
		return false, apperror.Remote(errors.New("db down"))
	}
	return s[userID+":"+role], nil
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Identity(r.Context())))
	})
}

func TestAuthMiddleware_Handle(t *testing.T) {
	auth := stubAuth{"good": {UserID: "u1", ProfileID: "p1"}}
	h := NewAuthMiddleware(auth).Handle(echoIdentity())

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, "p1"},
		{"lowercase scheme", "bearer good", "", http.StatusOK, "p1"},
		{"query token", "", "good", http.StatusOK, "p1"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	auth := stubAuth{"good": {UserID: "u1", ProfileID: "p1"}}
	h := NewAuthMiddleware(auth).Optional(echoIdentity())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"anonymous", "", http.StatusOK, ""},
		{"bearer header", "Bearer good", http.StatusOK, "p1"},
		{"invalid token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	roles := stubRoles{"admin-user:admin": true}
	h := RequireRole(roles, "admin")(echoIdentity())

	tests := []struct {
		name      string
		principal *Principal
		status    int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"admin", &Principal{UserID: "admin-user", ProfileID: "p"}, http.StatusOK},
		{"regular user", &Principal{UserID: "someone"}, http.StatusForbidden},
		{"role lookup fails", &Principal{UserID: "broken"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "", Identity(context.Background()))

	ctx := WithPrincipal(context.Background(), &Principal{UserID: "u", ProfileID: ""})
	assert.Equal(t, "", Identity(ctx))

	ctx = WithPrincipal(context.Background(), &Principal{UserID: "u", ProfileID: "p"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", p.UserID)
	assert.Equal(t, "p", Identity(ctx))
}
