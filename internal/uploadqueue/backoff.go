package uploadqueue

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultBackoffBase   = 60 * time.Second
	DefaultBackoffMax    = time.Hour
	DefaultBackoffJitter = 0.1
	DefaultMaxRetries    = 5
)

// BackoffPolicy computes retry delays. Delay(n) is base*2^(n-1) capped at
// Max, plus up to Jitter*delay of random spread.
type BackoffPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Jitter     float64
	MaxRetries int

	mu   sync.Mutex
	rand func() float64
}

// DefaultBackoffPolicy returns the 60s/1h/10%/5 schedule.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		Base:       DefaultBackoffBase,
		Max:        DefaultBackoffMax,
		Jitter:     DefaultBackoffJitter,
		MaxRetries: DefaultMaxRetries,
	}
}

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
var jitterMu sync.Mutex

func defaultRand() float64 {
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return jitterSource.Float64()
}

// Delay returns the wait before retry number attempt (1-based).
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	limit := p.Max
	if limit <= 0 {
		limit = DefaultBackoffMax
	}
	if limit < base {
		limit = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= limit/2 {
			delay = limit
			break
		}
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}

	if p.Jitter > 0 {
		delay += time.Duration(float64(delay) * p.Jitter * p.random())
	}
	return delay
}

// Exhausted reports whether a draft with the given retry count must stop
// retrying.
func (p *BackoffPolicy) Exhausted(retries int) bool {
	limit := p.MaxRetries
	if limit <= 0 {
		limit = DefaultMaxRetries
	}
	return retries >= limit
}

func (p *BackoffPolicy) random() float64 {
	p.mu.Lock()
	fn := p.rand
	p.mu.Unlock()
	if fn == nil {
		return defaultRand()
	}
	return fn()
}

func (p *BackoffPolicy) withRand(fn func() float64) *BackoffPolicy {
	p.mu.Lock()
	p.rand = fn
	p.mu.Unlock()
	return p
}
