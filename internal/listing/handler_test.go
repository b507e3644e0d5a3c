package listing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "go-dalil/internal/middleware"
)

// adminRoles grants the admin role to the "admin" test identity only.
var adminRoles roleSet = map[string]bool{"admin": true}

type roleSet map[string]bool

func (s roleSet) HasRole(_ context.Context, userID, role string) (bool, error) {
	return role == "admin" && s[userID], nil
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-Identity"); id != "" {
				r = r.WithContext(myMiddleware.WithPrincipal(r.Context(), &myMiddleware.Principal{UserID: id, ProfileID: id}))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/api/listings", h.List)
	r.Get("/api/listings/{id}", h.Get)
	r.Post("/api/listings", h.Create)
	r.Patch("/api/listings/{id}", h.Update)
	r.Delete("/api/listings/{id}", h.Delete)
	r.Post("/api/listings/{id}/reviews", h.AddReview)
	r.Patch("/api/admin/listings/{id}/approval", h.SetApproval)
	return r
}

func call(t *testing.T, h http.Handler, method, path, identity, body string) (int, json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if identity != "" {
		req.Header.Set("X-Test-Identity", identity)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.Len() == 0 {
		return rec.Code, nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env.Data
}

func TestHandler_ListingLifecycle(t *testing.T) {
	s, _ := newTestService()
	router := newTestRouter(NewHandler(s, adminRoles, "admin"))

	status, data := call(t, router, http.MethodPost, "/api/listings", provider,
		`{"business_name":"Bejaia Boats","phone":"0551","address":"Port"}`)
	require.Equal(t, http.StatusCreated, status)
	var created Listing
	require.NoError(t, json.Unmarshal(data, &created))

	status, data = call(t, router, http.MethodGet, "/api/listings", "", "")
	require.Equal(t, http.StatusOK, status)
	var page Page
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Empty(t, page.Data)

	status, _ = call(t, router, http.MethodPatch, "/api/admin/listings/"+created.ID+"/approval", "admin", `{"is_approved":true}`)
	require.Equal(t, http.StatusOK, status)

	status, data = call(t, router, http.MethodGet, "/api/listings?page=1&limit=5", "", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.TotalPages)

	status, _ = call(t, router, http.MethodPost, "/api/listings/"+created.ID+"/reviews", customer, `{"rating":4}`)
	require.Equal(t, http.StatusCreated, status)

	status, data = call(t, router, http.MethodGet, "/api/listings/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, status)
	var got Listing
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1, got.ReviewCount)
	assert.InDelta(t, 4.0, got.AverageRating, 1e-9)

	status, _ = call(t, router, http.MethodDelete, "/api/listings/"+created.ID, customer, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = call(t, router, http.MethodDelete, "/api/listings/"+created.ID, provider, "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestHandler_BadRequests(t *testing.T) {
	s, _ := newTestService()
	router := newTestRouter(NewHandler(s, adminRoles, "admin"))

	tests := []struct {
		name     string
		method   string
		path     string
		identity string
		body     string
		status   int
	}{
		{"bad page", http.MethodGet, "/api/listings?page=abc", "", "", http.StatusBadRequest},
		{"bad category", http.MethodGet, "/api/listings?category=plumbing", "", "", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/listings/42", "", "", http.StatusBadRequest},
		{"anonymous create", http.MethodPost, "/api/listings", "", `{"business_name":"x","phone":"1","address":"a"}`, http.StatusUnauthorized},
		{"malformed body", http.MethodPost, "/api/listings", provider, `{"business_name":`, http.StatusBadRequest},
		{"approval without flag", http.MethodPatch, "/api/admin/listings/6f1c6a52-6d7e-4b59-9d1e-1d2c3f4a5b01/approval", "admin", `{}`, http.StatusBadRequest},
		{"approval of missing listing", http.MethodPatch, "/api/admin/listings/6f1c6a52-6d7e-4b59-9d1e-1d2c3f4a5b01/approval", "admin", `{"is_approved":false}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, router, tt.method, tt.path, tt.identity, tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestHandler_PendingListingVisibility(t *testing.T) {
	s, _ := newTestService()
	router := newTestRouter(NewHandler(s, adminRoles, "admin"))
	pending := createListing(t, s, "Skikda Solar", false)
	path := "/api/listings/" + pending.ID

	tests := []struct {
		name     string
		identity string
		status   int
	}{
		{"anonymous", "", http.StatusNotFound},
		{"other user", customer, http.StatusNotFound},
		{"owner", provider, http.StatusOK},
		{"admin", "admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, router, http.MethodGet, path, tt.identity, "")
			assert.Equal(t, tt.status, status)
		})
	}

	_, err := s.SetApproval(context.Background(), pending.ID, true)
	require.NoError(t, err)
	status, _ := call(t, router, http.MethodGet, path, "", "")
	assert.Equal(t, http.StatusOK, status)
}
