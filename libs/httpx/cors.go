package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type cors struct {
	origins     map[string]struct{}
	any         bool
	credentials bool
	preflight   http.Header
}

// WithCORS lets the public booking page call the API from another origin.
// Empty AllowedOrigins disables it. Preflights from unknown origins get 403.
func WithCORS(cfg CORSPolicy) Middleware {
	if len(cfg.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := newCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			isPreflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")
			allowOrigin, ok := c.allow(origin)
			if !ok {
				if isPreflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if c.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if !isPreflight {
				next.ServeHTTP(w, r)
				return
			}
			for k, vs := range c.preflight {
				for _, v := range vs {
					h.Add(k, v)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func newCORS(cfg CORSPolicy) *cors {
	c := &cors{
		origins:     map[string]struct{}{},
		credentials: cfg.AllowCredentials,
		preflight:   http.Header{},
	}
	for _, o := range normalizeList(cfg.AllowedOrigins) {
		if o == "*" {
			c.any = true
			continue
		}
		c.origins[strings.ToLower(o)] = struct{}{}
	}
	if methods := normalizeList(cfg.AllowedMethods); len(methods) > 0 {
		c.preflight.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	}
	if headers := normalizeList(cfg.AllowedHeaders); len(headers) > 0 {
		c.preflight.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		c.preflight.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}
	c.preflight.Add("Vary", "Access-Control-Request-Method")
	c.preflight.Add("Vary", "Access-Control-Request-Headers")
	return c
}

// allow returns the Access-Control-Allow-Origin value for origin. A wildcard
// policy echoes the origin when credentials are allowed, since browsers reject
// "*" with credentials.
func (c *cors) allow(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if !c.any {
		return "", false
	}
	if c.credentials {
		return origin, true
	}
	return "*", true
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SplitOrigins parses a comma separated origin list as found in env config.
func SplitOrigins(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}
