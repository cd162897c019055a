// Package circuitbreaker prevents a failing counter or cache backend from
// stalling every request. An open circuit fails fast; the gateway maps that
// to a closed (rejecting) decision, never to a grant.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hostpanel/tokengate/internal/observability"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and requests are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and requests are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing whether the backend
	// has recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for a circuit breaker.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening
	// the circuit.
	MaxFailures int

	// Timeout is how long the circuit stays open before half-open probes.
	Timeout time.Duration

	// HalfOpenMax is the maximum number of probe requests in half-open
	// state.
	HalfOpenMax int

	// SuccessThreshold is the number of successes needed to close the
	// circuit from half-open state.
	SuccessThreshold int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:      5,
		Timeout:          10 * time.Second,
		HalfOpenMax:      3,
		SuccessThreshold: 2,
	}
}

// Validate fills invalid fields with defaults.
func (c *Config) Validate() {
	if c.MaxFailures < 1 {
		c.MaxFailures = 5
	}
	if c.Timeout < time.Millisecond {
		c.Timeout = 10 * time.Second
	}
	if c.HalfOpenMax < 1 {
		c.HalfOpenMax = 3
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = 2
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	name   string
	config *Config
	logger observability.Logger

	mu    sync.Mutex
	state State

	consecutiveFails int
	successes        int
	halfOpenRequests int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config *Config, logger observability.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = observability.NopLogger()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(_ context.Context, fn func() error) error {
	if !cb.allow() {
		recordRejection(cb.name)
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow checks if a request may pass.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenRequests = 1
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMax {
			cb.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// recordSuccess records a successful request.
func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}
}

// recordFailure records a failed request.
func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.config.MaxFailures {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// Any failure during probing reopens the circuit.
		cb.transitionTo(StateOpen)
	}
}

// transitionTo moves to a new state. Caller must hold the lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.consecutiveFails = 0
	cb.successes = 0
	cb.halfOpenRequests = 0

	recordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		observability.String("name", cb.name),
		observability.String("from", oldState.String()),
		observability.String("to", newState.String()),
	)
}
