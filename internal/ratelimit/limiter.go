// Package ratelimit provides an in-memory token bucket used to slow
// down brute-force attempts against the debug console login.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// Limiter is a per-key token bucket. Keys are opaque; the login
// middleware uses the client IP.
type Limiter struct {
	rate  float64 // tokens added per second
	burst float64 // bucket capacity

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a limiter allowing `rate` sustained requests per second
// per key with bursts up to `burst`. A background goroutine evicts keys
// idle for ten minutes; call Close to stop it.
func New(rate float64, burst int) *Limiter {
	l := &Limiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for key, reporting whether the request
// should proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: l.burst - 1, lastAccess: now}
		return true
	}

	b.tokens += now.Sub(b.lastAccess).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastAccess = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-staleThreshold)
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
