package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const sessionIDKey contextKey = "sessionID"

// SessionHeader carries the per-tab session identifier.
const SessionHeader = "X-Session-ID"

// SessionMiddleware resolves the per-tab session id. A tab that has not yet
// been assigned one gets a fresh id, echoed back so the frontend can pin it.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		w.Header().Set(SessionHeader, sessionID)

		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionIDFromContext retrieves the session id from request context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(sessionIDKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}
