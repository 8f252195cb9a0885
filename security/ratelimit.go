package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxTrackedIdentifiers = 10000
	limiterCleanupInterval       = 5 * time.Minute
	limiterIdleTimeout           = 30 * time.Minute
)

// visitor tracks a rate limiter and its last access time
type visitor struct {
	identifier string
	limiter    *rate.Limiter
	lastSeen   time.Time
}

// RateLimiter provides per-identifier rate limiting using a token bucket
// algorithm with LRU eviction to prevent unbounded memory growth.
type RateLimiter struct {
	mu       sync.RWMutex
	visitors map[string]*list.Element // identifier -> list element
	lru      *list.List               // LRU list of *visitor

	rate       int
	burst      int
	maxEntries int

	logger      *slog.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once

	evictions int64
}

// NewRateLimiter creates a new rate limiter with automatic cleanup and
// LRU eviction capped at 10,000 tracked identifiers.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithMaxEntries(requestsPerSecond, burst, defaultMaxTrackedIdentifiers, logger)
}

// NewRateLimiterWithMaxEntries creates a rate limiter with a custom cap on
// tracked identifiers. When the cap is reached, the least recently used
// entry is evicted. A cap of 0 means unlimited.
func NewRateLimiterWithMaxEntries(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		maxEntries = defaultMaxTrackedIdentifiers
	}

	rl := &RateLimiter{
		visitors:    make(map[string]*list.Element),
		lru:         list.New(),
		rate:        requestsPerSecond,
		burst:       burst,
		maxEntries:  maxEntries,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a request from the given identifier is allowed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, exists := rl.visitors[identifier]; exists {
		rl.lru.MoveToFront(elem)
		v := elem.Value.(*visitor)
		v.lastSeen = now
		return v.limiter.Allow()
	}

	if rl.maxEntries > 0 && len(rl.visitors) >= rl.maxEntries {
		rl.evictOldest()
	}

	v := &visitor{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastSeen:   now,
	}
	rl.visitors[identifier] = rl.lru.PushFront(v)

	return v.limiter.Allow()
}

// evictOldest removes the least recently used entry.
// Must be called with the mutex held.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}

	v := elem.Value.(*visitor)
	delete(rl.visitors, v.identifier)
	rl.lru.Remove(elem)
	rl.evictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"identifier", v.identifier,
		"total_evictions", rl.evictions,
		"current_entries", len(rl.visitors))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(limiterIdleTimeout)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters that have been idle longer than maxIdleTime.
func (rl *RateLimiter) Cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := rl.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		v := elem.Value.(*visitor)

		if now.Sub(v.lastSeen) > maxIdleTime {
			delete(rl.visitors, v.identifier)
			rl.lru.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.visitors))
	}
}

// Stop gracefully stops the cleanup goroutine. Idempotent.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int   // Current number of tracked identifiers
	MaxEntries     int   // Maximum allowed entries (0 = unlimited)
	TotalEvictions int64 // Total number of LRU evictions
}

// GetStats returns current rate limiter statistics for monitoring and alerting.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return Stats{
		CurrentEntries: len(rl.visitors),
		MaxEntries:     rl.maxEntries,
		TotalEvictions: rl.evictions,
	}
}
