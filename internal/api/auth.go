package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"courtflow/internal/config"

	"golang.org/x/time/rate"
)

const (
	apiKeyHeaderDefault = "X-Api-Key"
	permReadBookings    = "read:bookings"
	permWriteBookings   = "write:bookings"
	permPay             = "write:payments"
	clientKeyUnknown    = "unknown"
)

// HTTPAuth checks API keys and applies a per-key token bucket. Keys
// with an empty permissions list are treated as allow-all.
type HTTPAuth struct {
	cfg config.APIConfig

	clientsByAPIKey map[string]config.APIClientKey
	limiters        sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clientsByAPIKey: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		if !a.allowRate(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if a.cfg.Auth.Enabled && !hasPermission(client, requiredPermission(r)) {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) authenticate(w http.ResponseWriter, r *http.Request) (config.APIClientKey, bool) {
	if !a.cfg.Auth.Enabled {
		return config.APIClientKey{}, true
	}

	header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = apiKeyHeaderDefault
	}

	apiKey := strings.TrimSpace(r.Header.Get(header))
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing api key")
		return config.APIClientKey{}, false
	}

	client, ok := a.clientsByAPIKey[apiKey]
	if !ok || subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return config.APIClientKey{}, false
	}
	return client, true
}

func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/bookings"):
		if r.Method == http.MethodGet {
			return permReadBookings
		}
		return permWriteBookings
	case strings.HasSuffix(path, "/payment-intent"), strings.HasSuffix(path, "/pay"):
		return permPay
	default:
		return ""
	}
}

func (a *HTTPAuth) allowRate(key string) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}

	v, ok := a.limiters.Load(key)
	if !ok {
		burst := a.cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		v, _ = a.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst))
	}
	return v.(*rate.Limiter).Allow()
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	header := strings.TrimSpace(a.cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = apiKeyHeaderDefault
	}
	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}
	if host, _, found := strings.Cut(r.RemoteAddr, ":"); found && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}
