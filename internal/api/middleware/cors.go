package middleware

import (
	"net/http"
	"strings"
)

// CORS returns a middleware that honors the configured
// CLIENT_CORS_ORIGIN allow-list. "*" or "" allows any origin.
func CORS(clientCORSOrigin string) func(http.Handler) http.Handler {
	allowAll := clientCORSOrigin == "" || clientCORSOrigin == "*"
	allowed := make(map[string]struct{})
	if !allowAll {
		for _, origin := range strings.Split(clientCORSOrigin, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowed[origin] = struct{}{}
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			default:
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
