package models

import (
	"time"

	"github.com/google/uuid"
)

// Child account with the lower-trust username+PIN credential scheme.
// Provisioned by the parent-facing flow; never deleted while sessions may
// reference it, only deactivated.
type Child struct {
	ID        uuid.UUID
	ParentID  uuid.UUID
	CreatedAt time.Time
	Username  string
	PINHash   string
	Active    bool
}
