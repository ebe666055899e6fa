package server

import (
	"fmt"
	"sync"
	"time"
)

// pruneThreshold is the client count above which idle clients are dropped.
const pruneThreshold = 1024

// RateLimiter enforces fixed-window request limits and daily quotas per
// client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // in bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// roll starts a new window once span has passed since the current start.
func (w *window) roll(now time.Time, span time.Duration) {
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
}

type clientUsage struct {
	minute   window
	hour     window
	dayStart time.Time
	today    int
	data     int64
	lastSeen time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
	LastRequest        time.Time
}

// NewRateLimiter creates a new rate limiter with the given limits. Zero
// disables a limit.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// CheckRateLimit admits or rejects one request of dataSize bytes from
// clientID. Admitted requests are counted; rejected ones are not.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(clientID, now)

	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	if day := midnight(now); !day.Equal(u.dayStart) {
		u.dayStart = day
		u.today = 0
		u.data = 0
	}

	if rl.requestsPerMinute > 0 && u.minute.count >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       "minute",
			Limit:      rl.requestsPerMinute,
			RetryAfter: u.minute.start.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && u.hour.count >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: u.hour.start.Add(time.Hour).Sub(now),
		}
	}

	resets := u.dayStart.AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.today >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.maxRequestsPerDay),
			Used:   int64(u.today),
			Resets: resets,
		}
	}
	if rl.maxDataPerDay > 0 && u.data+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{
			Type:   "data",
			Limit:  rl.maxDataPerDay,
			Used:   u.data,
			Resets: resets,
		}
	}

	u.minute.count++
	u.hour.count++
	u.today++
	u.data += dataSize
	u.lastSeen = now
	return nil
}

func (rl *RateLimiter) usage(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if ok {
		return u
	}
	if len(rl.clients) >= pruneThreshold {
		rl.prune(now.Add(-24 * time.Hour))
	}
	u = &clientUsage{
		minute:   window{start: now},
		hour:     window{start: now},
		dayStart: midnight(now),
	}
	rl.clients[clientID] = u
	return u
}

// prune drops clients not seen since cutoff.
func (rl *RateLimiter) prune(cutoff time.Time) int {
	n := 0
	for id, u := range rl.clients {
		if u.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

// GetUsage returns current usage statistics for a client.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[clientID]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.minute.count,
		RequestsLastHour:   u.hour.count,
		RequestsToday:      u.today,
		DataToday:          u.data,
		LastRequest:        u.lastSeen,
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
