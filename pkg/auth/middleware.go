package auth

import (
	"net/http"

	"github.com/rhuss/wandel/pkg/api"
	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
	"github.com/rhuss/wandel/pkg/transport"
)

// DefaultPublicPaths are reachable without credentials: the probes the
// orchestrator calls, the metrics scrape, and the configuration a router
// polls.
var DefaultPublicPaths = []string{"/ready", "/live", "/version", "/metrics", "/transform/config"}

// Middleware authenticates every request whose path is not public, then
// applies the limiter (which may be nil) to the caller. The identity and
// its tenant are stored in the request context.
func Middleware(chain *Chain, limiter RateLimiter, public []string) transport.Middleware {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Allow || res.Identity == nil {
				debug.Log("auth", "rejected", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
				transport.WriteAPIError(w, api.NewUnauthorizedError(ErrUnauthenticated.Error()))
				return
			}
			id := res.Identity
			if id.Subject == "" {
				transport.WriteAPIError(w, api.NewServerError("authenticator returned an identity without a subject"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					debug.Log("auth", "rate limited", "subject", id.Subject, "tier", id.Tier)
					observability.RateLimitRejectedTotal.WithLabelValues(tierOf(id)).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			debug.Log("auth", "authenticated", "subject", id.Subject, "tenant", id.Tenant, "path", r.URL.Path)
			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.SetTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tierOf(id *Identity) string {
	if id.Tier == "" {
		return DefaultTier
	}
	return id.Tier
}
