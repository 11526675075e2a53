package auth

import (
	"sync"
	"time"
)

// Limiter bounds how many rendezvous a single source may open using a
// per-source token bucket: a source starts with a full bucket and earns
// tokens back as its window elapses.
type Limiter struct {
	burst      float64
	refillRate float64 // tokens per second
	buckets    sync.Map
	stopCh     chan struct{}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewLimiter creates a limiter allowing at most burst requests per source
// within one window.
func NewLimiter(burst int, window time.Duration) *Limiter {
	l := &Limiter{
		burst:      float64(burst),
		refillRate: float64(burst) / window.Seconds(),
		stopCh:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether the source may open another rendezvous.
func (l *Limiter) Allow(source string) bool {
	bucket := l.getBucket(source)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * l.refillRate
	if bucket.tokens > l.burst {
		bucket.tokens = l.burst
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true
	}
	return false
}

// Close stops the background cleanup.
func (l *Limiter) Close() {
	close(l.stopCh)
}

func (l *Limiter) getBucket(source string) *tokenBucket {
	if val, ok := l.buckets.Load(source); ok {
		return val.(*tokenBucket)
	}
	bucket := &tokenBucket{tokens: l.burst, lastRefill: time.Now()}
	actual, _ := l.buckets.LoadOrStore(source, bucket)
	return actual.(*tokenBucket)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup drops buckets idle long enough to be full again anyway.
func (l *Limiter) cleanup() {
	now := time.Now()
	l.buckets.Range(func(key, value interface{}) bool {
		bucket := value.(*tokenBucket)
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastRefill) > 10*time.Minute
		bucket.mu.Unlock()
		if idle {
			l.buckets.Delete(key)
		}
		return true
	})
}
