package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/tenant"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the caller's identity from a bearer header or the
// access cookie and places it on the request context.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// Authenticate attaches identity when a valid token is present and lets
// the request through anonymously otherwise. Handlers behind it decide
// what anonymity means.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.identityContext(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects the request with 401 unless a valid token is
// presented.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.identityContext(r)
		if err != nil {
			var appErr *common.AppError
			if !errors.Is(err, errNoToken) && errors.As(err, &appErr) {
				status := appErr.HTTPStatus
				if status == 0 {
					status = http.StatusUnauthorized
				}
				common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) identityContext(r *http.Request) (context.Context, error) {
	if m.Service == nil {
		return r.Context(), errors.New("auth: service not configured")
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	identity, err := m.Service.ParseAccessToken(token)
	if err != nil {
		return r.Context(), err
	}
	ctx := common.WithUserID(r.Context(), identity.UserID)
	if identity.CompanyID != "" {
		ctx = tenant.WithCompany(ctx, identity.CompanyID)
	}
	return ctx, nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}
