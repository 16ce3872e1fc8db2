package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig controls Cross-Origin Resource Sharing behaviour.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int // seconds
}

// NewCORSConfig allows the given origins for the chat API's methods and
// headers. Credentials are allowed only for an explicit origin list; a "*"
// entry turns them off.
func NewCORSConfig(origins []string, maxAge int) CORSConfig {
	return CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           maxAge,
	}
}

// CORS returns middleware that sets the CORS response headers and answers
// preflight OPTIONS requests.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			exact, wildcard := matchOrigin(cfg.AllowOrigins, origin)
			// A wildcard never grants a credentialed request.
			if origin == "" || !(exact || (wildcard && !cfg.AllowCredentials)) {
				next.ServeHTTP(w, r)
				return
			}

			if exact {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			if exact && cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is listed explicitly and whether a "*"
// entry is present.
func matchOrigin(allowed []string, origin string) (exact, wildcard bool) {
	for _, o := range allowed {
		switch {
		case o == "*":
			wildcard = true
		case strings.EqualFold(o, origin):
			exact = true
		}
	}
	return exact, wildcard
}
