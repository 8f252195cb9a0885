// Package security provides security-related functionality for the server,
// including rate limiting, client IP extraction, request ID propagation,
// secure response headers, and audit logging.
//
// # Rate Limiting
//
// The RateLimiter provides per-identifier rate limiting using a token bucket
// algorithm with automatic memory management through LRU eviction. To prevent
// unbounded memory growth under distributed attacks, the number of tracked
// identifiers is capped; when the cap is reached the least recently used
// entries are evicted first, so legitimate repeat callers survive longer than
// one-shot attack IPs.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // Rate limit exceeded
//	    return http.StatusTooManyRequests
//	}
//
// # Audit Logging
//
// The Auditor emits structured security events with hashed subject
// identifiers so audit trails can be correlated without storing raw PII.
package security
