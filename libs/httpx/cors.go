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

// WithCORS lets the booking site call the API from its own origin. Empty
// AllowedOrigins disables it; empty methods or headers fall back to what the API uses.
func WithCORS(p CORSPolicy) Middleware {
	c := compileCORS(p)
	if c == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.apply(w.Header(), r.Header.Get("Origin")) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	credentials bool
	methods     string
	headers     string
	maxAge      string
}

func compileCORS(p CORSPolicy) *corsRules {
	c := &corsRules{origins: map[string]struct{}{}, credentials: p.AllowCredentials}
	for _, o := range p.AllowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			c.anyOrigin = true
		default:
			c.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	if !c.anyOrigin && len(c.origins) == 0 {
		return nil
	}

	methods := p.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}
	}
	headers := p.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type", RequestIDHeader}
	}
	c.methods = joinTrimmed(methods)
	c.headers = joinTrimmed(headers)
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		c.maxAge = strconv.Itoa(secs)
	}
	return c
}

// apply writes the CORS response headers and reports whether origin is allowed.
func (c *corsRules) apply(h http.Header, origin string) bool {
	if origin == "" {
		return false
	}
	allow := origin
	if _, ok := c.origins[strings.ToLower(origin)]; !ok {
		if !c.anyOrigin {
			return false
		}
		// A wildcard cannot be combined with credentials, so echo the origin instead.
		if !c.credentials {
			allow = "*"
		}
	}

	h.Set("Access-Control-Allow-Origin", allow)
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.methods != "" {
		h.Set("Access-Control-Allow-Methods", c.methods)
	}
	if c.headers != "" {
		h.Set("Access-Control-Allow-Headers", c.headers)
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")
	return true
}

func joinTrimmed(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
