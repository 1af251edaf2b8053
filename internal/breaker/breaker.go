// Package breaker guards optional side channels (e.g. event publishing) so
// a down dependency cannot stall the request path that feeds it.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

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

// ErrOpen is returned without invoking the guarded function while the
// breaker is cooling down.
var ErrOpen = errors.New("breaker is open")

type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	logger      *logrus.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func New(name string, maxFailures int, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger,
	}
}

// Do runs fn unless the breaker is open. A failure while half-open reopens
// immediately; a success closes the breaker and resets the failure count.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.setState(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.setState(StateOpen)
		}
		return err
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
	}
	return nil
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	b.logger.WithFields(logrus.Fields{
		"breaker":    b.name,
		"from_state": b.state.String(),
		"to_state":   next.String(),
	}).Info("Breaker state changed")
	b.state = next
}
