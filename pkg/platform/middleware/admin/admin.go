// Package admin guards operator endpoints with a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/httputil"
	"certreg/pkg/requestcontext"
)

// HeaderOpsToken carries the operator token.
const HeaderOpsToken = "X-Ops-Token"

// RequireOpsToken rejects requests whose X-Ops-Token does not match
// expectedToken. An empty expectedToken rejects everything.
func RequireOpsToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderOpsToken)
			// Use constant-time comparison to prevent timing attacks
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "ops token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "ops token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
