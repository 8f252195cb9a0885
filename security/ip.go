package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP resolves the caller's IP for rate limiting, the per-IP
// registration cap, and audit logs. Proxy headers are consulted only
// when trustProxy is set; otherwise anyone could spoof their way past
// the limiter with a forged X-Forwarded-For.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, as httptest and unix sockets produce
		return r.RemoteAddr
	}
	return host
}

// clientIPFromForwardedFor picks the client entry out of an
// X-Forwarded-For list of the form "client, hop-n, ..., hop-1". Only
// the rightmost trustedProxyCount entries were appended by proxies we
// control; everything left of them is attacker-writable, so the client
// is addressed from the right. A count of 0 is treated as 1.
func clientIPFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	hops := strings.Split(xff, ",")
	trusted := trustedProxyCount
	if trusted == 0 {
		trusted = 1
	}
	idx := len(hops) - trusted - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
