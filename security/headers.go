package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders applies the response header set shared by every
// OAuth and protocol endpoint: no framing, no MIME sniffing, a deny-all
// CSP, no referrer leakage, and no caching of responses that may carry
// codes or tokens. HSTS is added only when the issuer itself is HTTPS;
// sending it from an HTTP dev server would poison the browser's host
// cache.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}
