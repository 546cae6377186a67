package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleChild  Role = "CHILD"
	RoleParent Role = "PARENT"
)

// Persisted refresh token ledger row. ReplacedBy points at the successor
// token value and forms the rotation chain. For any chain at most one row
// has Revoked == false at any instant.
type RefreshToken struct {
	ID        uuid.UUID
	SubjectID uuid.UUID
	Role      Role
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	ReplacedBy *string // nil until the token is rotated
}
