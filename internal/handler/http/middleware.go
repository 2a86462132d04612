package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enginerror/Shopping-Cart/pkg/httputil"
	"github.com/enginerror/Shopping-Cart/pkg/logger"
	"github.com/enginerror/Shopping-Cart/pkg/middleware"
)

// Session transport names.
const (
	SessionCookieName = "shopease_session"
	SessionHeader     = middleware.SessionIDHeader
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const sessionIDKey contextKey = "session_id"

// SessionConfig controls the session cookie.
type SessionConfig struct {
	TTL    time.Duration
	Secure bool
}

// Session resolves the shopper's session id from the X-Session-ID header or
// the session cookie. When neither carries a valid id a new one is minted and
// sent back as a cookie. The id is always echoed in the X-Session-ID header.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := requestSessionID(r)
			if !ok {
				id = uuid.NewString()
				http.SetCookie(w, sessionCookie(id, cfg))
			}
			w.Header().Set(SessionHeader, id)

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			ctx = logger.WithSessionID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestSessionID(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" && uuid.Validate(id) == nil {
		return id, true
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && uuid.Validate(c.Value) == nil {
		return c.Value, true
	}
	return "", false
}

func sessionCookie(id string, cfg SessionConfig) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// expireSessionCookie tells the browser to drop the session cookie.
func expireSessionCookie(w http.ResponseWriter, cfg SessionConfig) {
	c := sessionCookie("", cfg)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// sessionIDFromContext extracts the session id set by the Session middleware.
func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
