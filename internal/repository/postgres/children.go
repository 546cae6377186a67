package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/models"
)

type ChildRepo struct {
	DB DBTX
}

const createChild = `-- name: CreateChild
INSERT INTO children (id, parent_id, username, pin_hash)
VALUES ($1, $2, $3, $4)
RETURNING id, parent_id, created_at, username, pin_hash, active
`

func (r *ChildRepo) CreateChild(ctx context.Context, parentID uuid.UUID, username string, pinHash string) (models.Child, error) {
	rows, _ := r.DB.Query(ctx, createChild, uuid.New(), parentID, username, pinHash)
	child, err := pgx.CollectOneRow(rows, rowToChild)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return child, apperrors.ErrChildAlreadyExists
		}

		return child, wrapDBErr(err)
	}

	return child, nil
}

const getChildByID = `-- name: GetChildByID
SELECT id, parent_id, created_at, username, pin_hash, active
FROM children
WHERE id = $1
`

func (r *ChildRepo) GetChildByID(ctx context.Context, childID uuid.UUID) (models.Child, error) {
	rows, _ := r.DB.Query(ctx, getChildByID, childID)
	child, err := pgx.CollectOneRow(rows, rowToChild)

	switch {
	case err == nil:
		return child, nil
	case errors.Is(err, pgx.ErrNoRows):
		return child, apperrors.ErrChildNotFound
	default:
		return child, wrapDBErr(err)
	}
}

const getActiveChildByUsername = `-- name: GetActiveChildByUsername
SELECT id, parent_id, created_at, username, pin_hash, active
FROM children
WHERE username = $1 AND active
`

func (r *ChildRepo) GetActiveChildByUsername(ctx context.Context, username string) (models.Child, error) {
	rows, _ := r.DB.Query(ctx, getActiveChildByUsername, username)
	child, err := pgx.CollectOneRow(rows, rowToChild)

	switch {
	case err == nil:
		return child, nil
	case errors.Is(err, pgx.ErrNoRows):
		return child, apperrors.ErrChildNotFound
	default:
		return child, wrapDBErr(err)
	}
}

const setChildActive = `-- name: SetChildActive
UPDATE children
SET active = $2
WHERE id = $1
`

func (r *ChildRepo) SetChildActive(ctx context.Context, childID uuid.UUID, active bool) error {
	tag, err := r.DB.Exec(ctx, setChildActive, childID, active)
	if err != nil {
		return wrapDBErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChildNotFound
	}
	return nil
}

const updatePINHash = `-- name: UpdatePINHash
UPDATE children
SET pin_hash = $2
WHERE id = $1
`

func (r *ChildRepo) UpdatePINHash(ctx context.Context, childID uuid.UUID, pinHash string) error {
	tag, err := r.DB.Exec(ctx, updatePINHash, childID, pinHash)
	if err != nil {
		return wrapDBErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrChildNotFound
	}
	return nil
}

func rowToChild(row pgx.CollectableRow) (models.Child, error) {
	var c models.Child
	err := row.Scan(&c.ID, &c.ParentID, &c.CreatedAt, &c.Username, &c.PINHash, &c.Active)
	return c, err
}
