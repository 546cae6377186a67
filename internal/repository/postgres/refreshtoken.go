package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveToken
INSERT INTO refresh_tokens (id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL)
RETURNING id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by
`

func (r *RefreshTokenRepo) SaveToken(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.SubjectID, token.Role, token.Token, token.CreatedAt, token.ExpiresAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, wrapDBErr(err)
	}
	return saved, nil
}

const getToken = `-- name: GetToken
SELECT id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by
FROM refresh_tokens
WHERE token = $1
`

// Get returns the row even if revoked or expired: callers need the full
// picture to classify failures and to inspect rotation chains
func (r *RefreshTokenRepo) GetToken(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, wrapDBErr(err)
	}
}

// The conditional UPDATE and the successor INSERT run as one statement, so
// rotation is a single atomic compare-and-set on the revoked flag. Of N
// concurrent rotations with the same token only one finds a row to retire;
// the rest insert nothing and surface zero rows. Never a read-then-write pair.
const rotateToken = `-- name: RotateToken
WITH retired AS (
    UPDATE refresh_tokens
    SET revoked = TRUE, replaced_by = $1
    WHERE token = $2 AND NOT revoked AND expires_at > $5
    RETURNING subject_id, subject_role
)
INSERT INTO refresh_tokens (id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by)
SELECT $3, subject_id, subject_role, $1, $5, $4, FALSE, NULL
FROM retired
RETURNING id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by
`

func (r *RefreshTokenRepo) RotateToken(ctx context.Context, presented string, successor models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, rotateToken,
		successor.Token, presented, successor.ID, successor.ExpiresAt, successor.CreatedAt)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race or the token was never usable; a read-only lookup
		// classifies the failure after the fact
		return token, r.classifyUnusable(ctx, presented, successor.CreatedAt)
	default:
		return token, wrapDBErr(err)
	}
}

func (r *RefreshTokenRepo) classifyUnusable(ctx context.Context, tokenString string, now time.Time) error {
	token, err := r.GetToken(ctx, tokenString)
	switch {
	case err != nil:
		return err
	case token.Revoked:
		return apperrors.ErrTokenRevoked
	case !token.ExpiresAt.After(now):
		return apperrors.ErrTokenExpired
	default:
		// The row is usable again only if someone re-inserted the same
		// token value, which the unique index forbids
		return apperrors.ErrTokenNotFound
	}
}

const revokeToken = `-- name: RevokeToken
UPDATE refresh_tokens
SET revoked = TRUE
WHERE token = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeToken(ctx context.Context, tokenString string) error {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenString)
	if err != nil {
		return wrapDBErr(err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyUnusable(ctx, tokenString, time.Now())
	}
	return nil
}

const revokeAllForSubject = `-- name: RevokeAllForSubject
UPDATE refresh_tokens
SET revoked = TRUE
WHERE subject_id = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForSubject, subjectID)
	if err != nil {
		return 0, wrapDBErr(err)
	}
	return tag.RowsAffected(), nil
}

const listActiveTokens = `-- name: ListActiveTokens
SELECT id, subject_id, subject_role, token, created_at, expires_at, revoked, replaced_by
FROM refresh_tokens
WHERE subject_id = $1 AND NOT revoked AND expires_at > $2
ORDER BY created_at
`

func (r *RefreshTokenRepo) ListActiveTokens(ctx context.Context, subjectID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveTokens, subjectID, now)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	return tokens, nil
}

const deleteStaleTokens = `-- name: DeleteStaleTokens
DELETE FROM refresh_tokens
WHERE (revoked OR expires_at <= $1) AND created_at < $1
`

func (r *RefreshTokenRepo) DeleteStaleTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteStaleTokens, olderThan)
	if err != nil {
		return 0, wrapDBErr(err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.SubjectID, &t.Role, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.Revoked, &t.ReplacedBy)
	return t, err
}
