package models

import (
	"time"

	"github.com/google/uuid"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by the token manager on login or refresh.
// Both tokens share the same absolute expiry: the session window is fixed
// at issuance, not sliding.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Authenticated subject carried by an access token.
type Subject struct {
	ID   uuid.UUID
	Role Role
}

// Read projection over the ledger: a currently usable session is just a
// non-revoked, non-expired refresh token row.
type Session struct {
	ID        uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}
