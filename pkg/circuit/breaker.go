// Package circuit provides a circuit breaker used to shed load from a failing
// downstream, such as the share bus.
package circuit

import (
	"sync"
	"time"

	"github.com/bardlex/beampool/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets every call through
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down elapses
	StateOpen
	// StateHalfOpen lets probe calls through to test recovery
	StateHalfOpen
)

// String returns string representation of the state
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

// Config holds circuit breaker configuration
type Config struct {
	MaxFailures     int           // consecutive-window failures before opening
	SuccessRequired int           // probe successes needed to close from half-open
	Timeout         time.Duration // open duration before probing
	ResetTimeout    time.Duration // failure counter lifetime while closed
}

// DefaultConfig returns the configuration used for the share publisher
func DefaultConfig() *Config {
	return &Config{
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
	}
}

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New(errors.ErrorTypeInternal, "circuit_breaker", "circuit breaker is open")

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config *Config
	now    func() time.Time
	mu     sync.Mutex

	state        State
	failures     int
	successes    int
	rejected     int64
	lastFailTime time.Time
	windowStart  time.Time
}

// New creates a new circuit breaker
func New(config *Config) *Breaker {
	return NewWithClock(config, time.Now)
}

// NewWithClock creates a breaker reading time from now
func NewWithClock(config *Config, now func() time.Time) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config:      config,
		now:         now,
		state:       StateClosed,
		windowStart: now(),
	}
}

// Execute runs fn if the circuit allows it and records the outcome
func (cb *Breaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// Allow reports whether a call may proceed, moving open to half-open after
// the timeout
func (cb *Breaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	switch cb.state {
	case StateClosed:
		if now.Sub(cb.windowStart) > cb.config.ResetTimeout {
			cb.failures = 0
			cb.windowStart = now
		}
		return true
	case StateOpen:
		if now.Sub(cb.lastFailTime) > cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		cb.rejected++
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// Record feeds the outcome of an allowed call back into the breaker
func (cb *Breaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.config.MaxFailures) {
			cb.state = StateOpen
			cb.successes = 0
		}
		return
	}

	cb.successes++
	if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessRequired {
		cb.state = StateClosed
		cb.failures = 0
		cb.successes = 0
		cb.windowStart = cb.now()
	}
}

// GetState returns the current state
func (cb *Breaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a snapshot of breaker counters
type Stats struct {
	State        State
	Failures     int
	Successes    int
	Rejected     int64
	LastFailTime time.Time
}

// GetStats returns a snapshot of the breaker counters
func (cb *Breaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:        cb.state,
		Failures:     cb.failures,
		Successes:    cb.successes,
		Rejected:     cb.rejected,
		LastFailTime: cb.lastFailTime,
	}
}
