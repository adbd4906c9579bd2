package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Test 1: Messages inside the window are limited
func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Second)

	assert.True(t, limiter.Allow("a@x.com"))
	assert.True(t, limiter.Allow("a@x.com"))
	assert.True(t, limiter.Allow("a@x.com"))
	assert.False(t, limiter.Allow("a@x.com"), "fourth message inside the window is dropped")
}

// Test 2: Identities are limited independently
func TestRateLimiter_PerIdentity(t *testing.T) {
	limiter := NewRateLimiter(1, time.Second)

	assert.True(t, limiter.Allow("a@x.com"))
	assert.False(t, limiter.Allow("a@x.com"))
	assert.True(t, limiter.Allow("b@x.com"), "one noisy identity must not affect another")
}

// Test 3: The window slides
func TestRateLimiter_WindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(1, 50*time.Millisecond)

	assert.True(t, limiter.Allow("a@x.com"))
	assert.False(t, limiter.Allow("a@x.com"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.Allow("a@x.com"), "allowance returns once the window passes")
}

// Test 4: Remove clears state for a disconnected identity
func TestRateLimiter_Remove(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)

	assert.True(t, limiter.Allow("a@x.com"))
	assert.False(t, limiter.Allow("a@x.com"))

	limiter.Remove("a@x.com")
	assert.True(t, limiter.Allow("a@x.com"))
}
