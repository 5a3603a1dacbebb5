package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterStore keeps one token bucket per client and forgets all of them
// every resetEvery. It satisfies echo's middleware.RateLimiterStore.
type limiterStore struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	resetEvery time.Duration
	lastReset  time.Time
	limiters   map[string]*rate.Limiter
	now        func() time.Time
}

func newLimiterStore(perSecond float64, burst int, resetEvery time.Duration) *limiterStore {
	if burst < 1 {
		burst = 1
	}
	return &limiterStore{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		resetEvery: resetEvery,
		limiters:   make(map[string]*rate.Limiter),
		now:        time.Now,
	}
}

// Allow reports whether identifier may make a request now.
func (s *limiterStore) Allow(identifier string) (bool, error) {
	s.mu.Lock()
	now := s.now()
	if s.lastReset.IsZero() {
		s.lastReset = now
	}
	if s.resetEvery > 0 && now.Sub(s.lastReset) > s.resetEvery {
		s.limiters = make(map[string]*rate.Limiter)
		s.lastReset = now
	}
	l, ok := s.limiters[identifier]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[identifier] = l
	}
	s.mu.Unlock()

	return l.AllowN(now, 1), nil
}
