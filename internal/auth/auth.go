// Package auth guards the API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/star/sattrack/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
	// TrustProxy takes the client address from X-Forwarded-For when
	// logging rejected requests.
	TrustProxy bool
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// IsExempt reports whether path is served without a token.
func IsExempt(path string) bool {
	return exemptPaths[path]
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")

			if header == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				logger.Warn("unauthorized request",
					"component", "auth",
					"path", r.URL.Path,
					"remote_ip", httputil.ClientIP(r, cfg.TrustProxy),
				)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
