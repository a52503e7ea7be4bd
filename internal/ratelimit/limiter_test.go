package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToMax(t *testing.T) {
	l := New(3, time.Minute)

	assert.True(t, l.Allow("binance"))
	assert.True(t, l.Allow("binance"))
	assert.True(t, l.Allow("binance"))
	assert.False(t, l.Allow("binance"))
}

func TestLimiter_VenuesAreIndependent(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("binance"))
	assert.True(t, l.Allow("kraken"))
	assert.False(t, l.Allow("binance"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l := New(1, 10*time.Millisecond)

	assert.True(t, l.Allow("binance"))
	assert.False(t, l.Allow("binance"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("binance"))
}

func TestLimiter_Reset(t *testing.T) {
	l := New(1, time.Minute)

	assert.True(t, l.Allow("binance"))
	assert.False(t, l.Allow("binance"))

	l.Reset("binance")
	assert.True(t, l.Allow("binance"))
}

func TestLimiter_Remaining(t *testing.T) {
	l := New(2, time.Minute)

	assert.Equal(t, 2, l.Remaining("binance"))
	l.Allow("binance")
	assert.Equal(t, 1, l.Remaining("binance"))
	l.Allow("binance")
	assert.Equal(t, 0, l.Remaining("binance"))
}
