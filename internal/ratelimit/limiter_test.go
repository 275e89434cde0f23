package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenDeny(t *testing.T) {
	l := New(1, 3)
	defer l.Close()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("ip-a"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("ip-a"))

	// Other keys are unaffected.
	assert.True(t, l.Allow("ip-b"))
}

func TestRefill(t *testing.T) {
	l := New(100, 1)
	defer l.Close()

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("k"))
}

func TestEvictStale(t *testing.T) {
	l := New(1, 1)
	defer l.Close()

	l.Allow("old")
	l.mu.Lock()
	l.buckets["old"].lastAccess = time.Now().Add(-11 * time.Minute)
	l.mu.Unlock()

	l.evictStale()

	l.mu.Lock()
	_, ok := l.buckets["old"]
	l.mu.Unlock()
	assert.False(t, ok)
}
