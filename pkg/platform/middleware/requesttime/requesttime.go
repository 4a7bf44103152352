// Package requesttime stamps each request with the time it arrived, so access
// logs and handlers agree on one "now" per request.
package requesttime

import (
	"net/http"

	"github.com/jonboulle/clockwork"

	"airdrop/pkg/requestcontext"
)

// Middleware stores clock.Now() in the request context.
func Middleware(clock clockwork.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
