package fetcher

import (
	"sync"
	"time"
)

// Limiter enforces a minimum spacing between successive requests. One
// instance is shared by every public-provider fetch, so outbound
// throughput against third-party tile servers is globally capped no
// matter how many tile requests are in flight. That serialization is the
// point, not a bottleneck to optimize away.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// DefaultMinInterval keeps request rates within public tile servers'
// usage policies.
const DefaultMinInterval = 200 * time.Millisecond

func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &Limiter{
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks until at least the configured interval has passed since the
// previous request, then records the new request time.
func (l *Limiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.now().Sub(l.last)
	if elapsed < l.interval {
		l.sleep(l.interval - elapsed)
	}
	l.last = l.now()
}
