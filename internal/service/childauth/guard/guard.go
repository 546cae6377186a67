// Package guard implements the brute-force defense state machine for child
// PIN logins: Normal -> Suspicious -> Locked, driven by consecutive failures.
// All counter state lives in the repository so the machine is safe to run
// behind multiple service instances.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/models"
	"github.com/avelichko/kidlearn/internal/repository"
)

const (
	defaultSuspiciousThreshold = 3
	defaultLockoutThreshold    = 5
	defaultLockoutDuration     = 15 * time.Minute
)

type Decision int

const (
	// Allow: proceed to credential verification
	Allow Decision = iota

	// Suspicious: short-circuit the attempt before checking credentials;
	// the attempt still counts against the account
	Suspicious

	// Locked: reject everything, correct PIN included, until the lock elapses
	Locked
)

type Config struct {
	// Counter values at which attempts get short-circuited and locked out.
	// Zero values fall back to defaults (3 and 5)
	SuspiciousThreshold int
	LockoutThreshold    int

	// How long a lockout lasts once entered
	LockoutDuration time.Duration
}

type Guard struct {
	suspiciousThreshold int
	lockoutThreshold    int
	lockoutDuration     time.Duration

	states repository.FailureStateRepo
}

func New(cfg Config, states repository.FailureStateRepo) (*Guard, error) {
	if states == nil {
		return nil, errors.New("failure state repo must not be nil")
	}

	if cfg.SuspiciousThreshold == 0 {
		cfg.SuspiciousThreshold = defaultSuspiciousThreshold
	}
	if cfg.LockoutThreshold == 0 {
		cfg.LockoutThreshold = defaultLockoutThreshold
	}
	if cfg.LockoutDuration == 0 {
		cfg.LockoutDuration = defaultLockoutDuration
	}
	if cfg.LockoutThreshold <= cfg.SuspiciousThreshold {
		return nil, errors.New("lockout threshold must be greater than suspicious threshold")
	}

	return &Guard{
		suspiciousThreshold: cfg.SuspiciousThreshold,
		lockoutThreshold:    cfg.LockoutThreshold,
		lockoutDuration:     cfg.LockoutDuration,
		states:              states,
	}, nil
}

// Check decides what happens to an attempt before any credential work.
// An elapsed lock reads as Allow: the very next correct PIN must succeed
// and reset the counters
func (g *Guard) Check(ctx context.Context, childID uuid.UUID) (Decision, error) {
	state, err := g.states.GetFailureState(ctx, childID)
	if err != nil {
		return Locked, err
	}

	now := time.Now()
	switch {
	case state.LockedAt(now):
		return Locked, nil
	case state.LockedUntil != nil:
		// Lock elapsed; give the credentials a chance again
		return Allow, nil
	case state.ConsecutiveFailures >= g.suspiciousThreshold:
		return Suspicious, nil
	default:
		return Allow, nil
	}
}

// Outcome of recording one failure, with the transitions this particular
// failure caused
type Outcome struct {
	State models.FailureState

	// The counter just reached the suspicious threshold
	BecameSuspicious bool

	// This failure started (or restarted) a lockout window
	BecameLocked bool
}

// RecordFailure counts one failed attempt. The underlying store increment is
// atomic per child, so concurrent failures never overwrite each other
func (g *Guard) RecordFailure(ctx context.Context, childID uuid.UUID) (Outcome, error) {
	state, err := g.states.RecordFailure(ctx, childID, g.lockoutThreshold, g.lockoutDuration)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		State:            state,
		BecameSuspicious: state.ConsecutiveFailures == g.suspiciousThreshold,
		BecameLocked:     state.ConsecutiveFailures >= g.lockoutThreshold && state.LockedAt(time.Now()),
	}, nil
}

// Reset clears the counters after a successful authentication
func (g *Guard) Reset(ctx context.Context, childID uuid.UUID) error {
	return g.states.ResetFailureState(ctx, childID)
}
