package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framescope/server/internal/service"
)

// Context key for the resolved session
type ctxKey string

const sessionKey ctxKey = "session"

// sessionMiddleware resolves the session from the URL and injects it into
// the request context.
func sessionMiddleware(sessions *service.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "session_id")
			sess, err := sessions.Get(id)
			if err != nil {
				http.Error(w, "session not found: "+id, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSession(r *http.Request) *service.Session {
	if sess, ok := r.Context().Value(sessionKey).(*service.Session); ok {
		return sess
	}
	return nil
}
