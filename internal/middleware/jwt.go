package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"go-dalil/internal/apperror"
	"go-dalil/pkg/response"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller: the identity platform's user id and
// the profile id used as identity throughout the domain.
type Principal struct {
	UserID    string
	ProfileID string
}

// Authenticator turns an access token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (*Principal, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(a Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := requestToken(r)
		if tokenString == "" {
			response.ErrorWithMsg(w, apperror.ErrUnauthenticated, "missing authentication token")
			return
		}

		p, err := am.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			response.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Optional attaches the caller's Principal when a token is presented and lets
// anonymous requests through. A token that fails verification is rejected.
func (am *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := requestToken(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := am.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			response.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func requestToken(r *http.Request) string {
	if tokenString := extractToken(r.Header.Get("Authorization")); tokenString != "" {
		return tokenString
	}
	// Browsers cannot set headers on websocket upgrades.
	return r.URL.Query().Get("token")
}

// RoleChecker reports whether an identity-platform user holds role.
type RoleChecker interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireRole rejects callers that do not hold role. It must run after Handle.
func RequireRole(checker RoleChecker, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				response.Error(w, apperror.ErrUnauthenticated)
				return
			}
			allowed, err := checker.HasRole(r.Context(), p.UserID, role)
			if err != nil {
				response.Error(w, err)
				return
			}
			if !allowed {
				response.Error(w, apperror.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// Identity returns the caller's profile id, or "" when unauthenticated.
func Identity(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.ProfileID
	}
	return ""
}
