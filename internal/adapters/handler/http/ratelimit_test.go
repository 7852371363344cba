package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterStore_EvictsIdleVisitors(t *testing.T) {
	now := t0
	store := newLimiterStore(RateLimitConfig{RPS: 1, Burst: 1, Idle: time.Minute})
	store.now = func() time.Time { return now }

	assert.True(t, store.allow("1.2.3.4"))
	assert.False(t, store.allow("1.2.3.4"))
	assert.True(t, store.allow("5.6.7.8"))
	assert.Equal(t, 2, store.size())

	now = now.Add(2 * time.Minute)
	assert.True(t, store.allow("5.6.7.8"))
	assert.Equal(t, 1, store.size())
}

func TestLimiterStore_RefillsOverTime(t *testing.T) {
	now := t0
	store := newLimiterStore(RateLimitConfig{RPS: 2, Burst: 1})
	store.now = func() time.Time { return now }

	assert.True(t, store.allow("1.2.3.4"))
	assert.False(t, store.allow("1.2.3.4"))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, store.allow("1.2.3.4"))
}
