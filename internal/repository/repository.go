package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/models"
)

// Child account repository interface
type ChildRepo interface {
	// Create child account owned by parent
	// If username is taken already has to return apperrors.ErrChildAlreadyExists
	CreateChild(ctx context.Context, parentID uuid.UUID, username string, pinHash string) (models.Child, error)

	// Get child by id whatever its active flag is
	// If not found must return apperrors.ErrChildNotFound
	GetChildByID(ctx context.Context, childID uuid.UUID) (models.Child, error)

	// Get active child by username. Deactivated accounts are invisible here
	// If not found must return apperrors.ErrChildNotFound
	GetActiveChildByUsername(ctx context.Context, username string) (models.Child, error)

	// Toggle the active flag (soft-deactivate instead of delete)
	SetChildActive(ctx context.Context, childID uuid.UUID, active bool) error

	// Rotate the stored PIN hash
	UpdatePINHash(ctx context.Context, childID uuid.UUID, pinHash string) error
}

// FailureState repository interface
// The store is the serialization point for per-child counters: increments
// must be atomic so concurrent failed attempts never lose updates
type FailureStateRepo interface {
	// Get current state. Absent row means a zero state, not an error
	GetFailureState(ctx context.Context, childID uuid.UUID) (models.FailureState, error)

	// Record one failed attempt in a single atomic store operation.
	// Increments the counter, stamps lastFailureAt and, when the new
	// counter reaches lockThreshold and no active lock exists, sets
	// lockedUntil. Returns the state after the increment
	RecordFailure(ctx context.Context, childID uuid.UUID, lockThreshold int, lockFor time.Duration) (models.FailureState, error)

	// Reset counters on successful authentication
	ResetFailureState(ctx context.Context, childID uuid.UUID) error
}

// RefreshToken ledger interface
type RefreshTokenRepo interface {
	// Persist a freshly issued token row
	SaveToken(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the row even if it is revoked or expired
	// If unknown must return apperrors.ErrTokenNotFound
	GetToken(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Atomically retire the presented token and insert its successor,
	// linking the rotation chain. Of N concurrent calls with the same
	// still-valid token exactly one wins; losers get apperrors.ErrTokenRevoked,
	// expired tokens apperrors.ErrTokenExpired, unknown ones apperrors.ErrTokenNotFound.
	// The successor inherits subject id and role from the retired row
	RotateToken(ctx context.Context, presented string, successor models.RefreshToken) (models.RefreshToken, error)

	// Revoke one token (logout). Does not touch other sessions of the subject
	RevokeToken(ctx context.Context, tokenString string) error

	// Revoke every non-revoked token of the subject (account deactivation)
	RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error)

	// List non-revoked, non-expired rows for the subject: the session projection
	ListActiveTokens(ctx context.Context, subjectID uuid.UUID, now time.Time) ([]models.RefreshToken, error)

	// Garbage-collect rows that are expired or revoked before the horizon
	DeleteStaleTokens(ctx context.Context, olderThan time.Time) (int64, error)
}

// Storage combines all repositories over one connection source
type Storage interface {
	Children() ChildRepo
	FailureStates() FailureStateRepo
	RefreshTokens() RefreshTokenRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}
