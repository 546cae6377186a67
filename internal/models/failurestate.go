package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-child consecutive authentication failure counters.
// LockedUntil non-nil implies the counter reached the lockout threshold.
// Reset to zero/nil on any successful authentication.
type FailureState struct {
	ChildID             uuid.UUID
	ConsecutiveFailures int
	LastFailureAt       *time.Time // nil if no failures recorded
	LockedUntil         *time.Time // nil if not locked
}

// LockedAt reports whether the account is locked at the given moment.
// An elapsed LockedUntil counts as not locked.
func (s FailureState) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}
