package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware reads the caller identity from gateway-populated headers.
type Middleware struct {
	tenantHeader string
	userHeader   string
	logger       *zap.Logger
}

// NewMiddleware creates a header identity middleware.
func NewMiddleware(tenantHeader, userHeader string, logger *zap.Logger) *Middleware {
	return &Middleware{
		tenantHeader: tenantHeader,
		userHeader:   userHeader,
		logger:       logger.Named("auth"),
	}
}

// RequireIdentity rejects requests without both identity headers and stores
// the Identity in the request context for downstream handlers.
func (m *Middleware) RequireIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			TenantID: strings.TrimSpace(r.Header.Get(m.tenantHeader)),
			UserID:   strings.TrimSpace(r.Header.Get(m.userHeader)),
		}
		if id.TenantID == "" || id.UserID == "" {
			m.logger.Debug("Request without identity headers",
				zap.String("path", r.URL.Path),
				zap.Bool("has_tenant", id.TenantID != ""),
				zap.Bool("has_user", id.UserID != ""))
			m.unauthorized(w, "Authentication required")
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthenticated",
		"message": message,
	})
}
