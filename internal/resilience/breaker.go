package resilience

import (
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/skinmatch/platform/internal/errors"
)

// Breaker defaults for image sources.
const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 10 * time.Second
)

// State represents circuit breaker state
type State int

const (
	Closed   State = iota // Normal operation
	Open                  // Failing fast
	HalfOpen              // One probe allowed
)

func (s State) String() string {
	return [...]string{"closed", "open", "half-open"}[s]
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Name      string        // appears in logs and error metadata
	Threshold int           // consecutive tripping failures before opening
	Cooldown  time.Duration // wait before a half-open probe
}

// Breaker fails fast after a run of retryable failures. Errors that
// IsRetryable rejects (a missing file, a corrupt image) do not count.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerCooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(HalfOpen)
	}
	return b.state
}

// allow admits a call, or returns CodeUnavailable while open. Half-open
// admits a single probe at a time.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.stateLocked() {
	case Open:
		return apperrors.New(apperrors.CodeUnavailable, "circuit breaker open").
			WithMetadata("breaker", b.cfg.Name)
	case HalfOpen:
		if b.probing {
			return apperrors.New(apperrors.CodeUnavailable, "circuit breaker probing").
				WithMetadata("breaker", b.cfg.Name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil || !IsRetryable(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Open:
		slog.Warn("circuit breaker opened", "breaker", b.cfg.Name, "failures", b.failures)
	default:
		slog.Info("circuit breaker "+to.String(), "breaker", b.cfg.Name, "from", from.String())
	}
}

// Call runs fn with circuit protection.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	b.record(err)
	if err != nil {
		return zero, err
	}
	return result, nil
}
