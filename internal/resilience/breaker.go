// Package resilience guards calls to the language model behind a circuit
// breaker so a failing upstream is not hammered by every chat request.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the position of a breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cooldown elapses.
	Open
	// HalfOpen lets a single probe through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected without being attempted.
var ErrOpen = eris.New("resilience: circuit open")

// Config tunes a Breaker.
type Config struct {
	// Threshold is the number of consecutive tripping failures that opens
	// the breaker. Default 5.
	Threshold int
	// Cooldown is how long the breaker stays open before a probe. Default 30s.
	Cooldown time.Duration
	// ShouldTrip decides whether an error counts as a failure. Defaults
	// to IsTransient.
	ShouldTrip func(err error) bool
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	Rejected int64     `json:"rejected"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Breaker is a consecutive-failure circuit breaker. Errors that do not
// trip it (client errors, cancellations) neither count as failures nor
// reset the streak.
type Breaker struct {
	name string
	cfg  Config
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	rejected int64

	now func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		log:  zap.L().With(zap.String("component", "resilience"), zap.String("breaker", name)),
		now:  time.Now,
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn through b and returns its value.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := b.acquire()
	if err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(probe, err)
	return val, err
}

// State reports the current state. An open breaker past its cooldown
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Stats returns counters for the admin surface.
func (b *Breaker) Stats() Stats {
	st := b.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{Name: b.name, State: st.String(), Failures: b.failures, Rejected: b.rejected}
	if st != Closed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	b.setState(Closed)
}

// acquire reports whether the call is the half-open probe.
func (b *Breaker) acquire() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return false, ErrOpen
		}
		b.setState(HalfOpen)
		b.probing = true
		return true, nil
	case HalfOpen:
		if b.probing {
			b.rejected++
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}

	if err != nil && b.cfg.ShouldTrip(err) {
		b.failures++
		if b.state == HalfOpen || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.setState(Open)
		}
		return
	}
	if err == nil {
		b.failures = 0
		if b.state == HalfOpen {
			b.setState(Closed)
		}
		return
	}
	// A non-tripping error from the probe says the upstream answered.
	if probe {
		b.failures = 0
		b.setState(Closed)
	}
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.log.Info("resilience: breaker state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", b.failures),
	)
}
