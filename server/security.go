package server

import (
	"fmt"
	"net/http"
	"time"
)

// hstsMaxAge is sent with Strict-Transport-Security when serving TLS.
const hstsMaxAge = 365 * 24 * time.Hour

// securityHeaders sets headers that are safe for every JSON response.
func securityHeaders(tls bool, h http.Handler) http.Handler {
	static := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	if tls {
		static["Strict-Transport-Security"] = fmt.Sprintf("max-age=%.0f; includeSubDomains", hstsMaxAge.Seconds())
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range static {
			w.Header().Set(k, v)
		}
		h.ServeHTTP(w, r)
	})
}
