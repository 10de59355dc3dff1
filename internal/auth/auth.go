// internal/auth/auth.go
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/unclebandit/coursetrack-backend/internal/model"
)

// Session identifies the authenticated caller. The upstream gateway
// performs the actual authentication and forwards identity and scope
// as headers; this package only extracts them.
type Session struct {
	UserID string
	Scope  string
}

type contextKey struct{}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}

// Middleware rejects requests without an authenticated caller and
// attaches the caller's session to the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		scope := r.Header.Get("X-User-Scope")
		if userID == "" || scope == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}

		session := &Session{UserID: userID, Scope: scope}
		ctx := context.WithValue(r.Context(), contextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ScopeCovers reports whether callerScope may act on a resource tagged
// with resourceScope. Institution-wide callers cover every program;
// program-level callers cover only their own program.
func ScopeCovers(callerScope, resourceScope string) bool {
	if callerScope == model.ScopeInstitution {
		return true
	}
	return callerScope == resourceScope
}
