package middleware

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Origins is the set of browser origins allowed to call the API and open
// the live event streams.
type Origins struct {
	allowed map[string]struct{}
}

// OriginsFromEnv reads the comma-separated WEB_ALLOWED_ORIGINS env var.
// Localhost origins on any port are always allowed for development.
func OriginsFromEnv() *Origins {
	return NewOrigins(os.Getenv("WEB_ALLOWED_ORIGINS"))
}

// NewOrigins parses a comma-separated origin list.
func NewOrigins(list string) *Origins {
	origins := make(map[string]struct{})
	for o := range strings.SplitSeq(list, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return &Origins{allowed: origins}
}

// isLocalhostOrigin returns true if the origin is http(s)://localhost:<port>.
func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost:", "https://localhost:"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return origin == "http://localhost" || origin == "https://localhost"
}

// Allowed checks whether a request origin should receive CORS headers.
func (o *Origins) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if isLocalhostOrigin(origin) {
		return true
	}
	_, ok := o.allowed[origin]
	return ok
}

// CheckOrigin is the websocket upgrade check: requests without an Origin
// header, same-host requests and allowed origins pass.
func (o *Origins) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return o.Allowed(origin)
}

// CORS returns middleware that handles CORS headers with the origin whitelist.
func (o *Origins) CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if o.Allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders returns middleware that sets Content-Security-Policy and other security headers.
// Camera frames are captured in the browser, so blob: media and websocket connections are allowed.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; img-src 'self' data: blob:; media-src 'self' blob:; "+
					"connect-src 'self' ws: wss:; style-src 'self' 'unsafe-inline'")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	}
}
