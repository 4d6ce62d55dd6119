package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"slotcal/internal/config"

	"golang.org/x/time/rate"
)

// Permissions checked per method. GET needs read, everything else write.
const (
	PermRead  = "bookings:read"
	PermWrite = "bookings:write"
)

// HTTPAuth authenticates API clients by a key pair carried in two headers
// and rate-limits each client independently.
type HTTPAuth struct {
	cfg      config.APIConfig
	limiters sync.Map // client name -> *rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg}
}

// Wrap enforces authentication and rate limiting in front of next. Health
// checks stay open so probes do not need credentials.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if !a.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		client := a.authenticate(r)
		if client == nil {
			writeError(w, http.StatusUnauthorized, "invalid API credentials")
			return
		}
		if !hasPermission(client, requiredPermission(r.Method)) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		if !a.allow(client.Name) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) authenticate(r *http.Request) *config.APIClientKey {
	key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
	extra := r.Header.Get(a.cfg.Auth.HeaderExtra)
	if key == "" {
		return nil
	}

	for i := range a.cfg.Auth.APIKeys {
		candidate := &a.cfg.Auth.APIKeys[i]
		keyOK := subtle.ConstantTimeCompare([]byte(candidate.Key), []byte(key)) == 1
		extraOK := subtle.ConstantTimeCompare([]byte(candidate.Extra), []byte(extra)) == 1
		if keyOK && extraOK {
			return candidate
		}
	}
	return nil
}

func (a *HTTPAuth) allow(clientName string) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	limiter, _ := a.limiters.LoadOrStore(clientName,
		rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), a.cfg.RateLimit.Burst))
	return limiter.(*rate.Limiter).Allow()
}

func requiredPermission(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return PermRead
	default:
		return PermWrite
	}
}

func hasPermission(client *config.APIClientKey, perm string) bool {
	for _, p := range client.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}
