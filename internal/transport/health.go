// Package transport is a small REST client with endpoint failover, adapted
// from the teacher's JSON-RPC failover client to plain HTTP GET/POST calls.
// It backs both the blockchain gateway client and the venue HTTP adapter.
package transport

import (
	"sync"
	"time"
)

// HealthTracker tracks endpoint health for failover decisions via a simple
// circuit breaker: open after consecutive failures, close after consecutive
// successes, half-open after a cooldown window.
type HealthTracker interface {
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
	IsHealthy(endpoint string) bool
	Reset(endpoint string)
}

type endpointHealth struct {
	consecutiveFailures  int
	consecutiveSuccesses int
	circuitOpen          bool
	lastFailure          time.Time
}

// CircuitBreaker is the default HealthTracker implementation.
type CircuitBreaker struct {
	mu     sync.Mutex
	health map[string]*endpointHealth

	failureThreshold int
	successThreshold int
	openWindow       time.Duration
}

// NewCircuitBreaker creates a tracker with sane defaults: three consecutive
// failures opens the circuit, two consecutive successes closes it, and an
// open circuit is retried after 30 seconds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		health:           make(map[string]*endpointHealth),
		failureThreshold: 3,
		successThreshold: 2,
		openWindow:        30 * time.Second,
	}
}

func (c *CircuitBreaker) get(endpoint string) *endpointHealth {
	h, ok := c.health[endpoint]
	if !ok {
		h = &endpointHealth{}
		c.health[endpoint] = h
	}
	return h
}

func (c *CircuitBreaker) RecordSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.get(endpoint)
	h.consecutiveFailures = 0
	h.consecutiveSuccesses++
	if h.circuitOpen && h.consecutiveSuccesses >= c.successThreshold {
		h.circuitOpen = false
	}
}

func (c *CircuitBreaker) RecordFailure(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.get(endpoint)
	h.consecutiveSuccesses = 0
	h.consecutiveFailures++
	h.lastFailure = time.Now()
	if h.consecutiveFailures >= c.failureThreshold {
		h.circuitOpen = true
	}
}

func (c *CircuitBreaker) IsHealthy(endpoint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.health[endpoint]
	if !ok {
		return true
	}
	if h.circuitOpen && time.Since(h.lastFailure) < c.openWindow {
		return false
	}
	return true
}

func (c *CircuitBreaker) Reset(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.health, endpoint)
}
