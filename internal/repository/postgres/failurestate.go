package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/avelichko/kidlearn/internal/models"
)

type FailureStateRepo struct {
	DB DBTX
}

const getFailureState = `-- name: GetFailureState
SELECT child_id, consecutive_failures, last_failure_at, locked_until
FROM failure_states
WHERE child_id = $1
`

// Absent row reads as the zero state: the account simply has no failures yet
func (r *FailureStateRepo) GetFailureState(ctx context.Context, childID uuid.UUID) (models.FailureState, error) {
	rows, _ := r.DB.Query(ctx, getFailureState, childID)
	state, err := pgx.CollectOneRow(rows, rowToFailureState)

	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.FailureState{ChildID: childID}, nil
	default:
		return state, wrapDBErr(err)
	}
}

// Single-statement upsert so two concurrent failures can't both read a stale
// counter: postgres serializes the row update, each caller sees the other's
// increment. The lockout transition happens in the same statement — only the
// attempt that pushes the counter to the threshold (with no active lock)
// stamps locked_until.
const recordFailure = `-- name: RecordFailure
INSERT INTO failure_states (child_id, consecutive_failures, last_failure_at, locked_until)
VALUES ($1, 1, $2, CASE WHEN 1 >= $3 THEN $4::timestamptz ELSE NULL END)
ON CONFLICT (child_id) DO UPDATE
SET consecutive_failures = failure_states.consecutive_failures + 1,
    last_failure_at = $2,
    locked_until = CASE
        WHEN failure_states.consecutive_failures + 1 >= $3
             AND (failure_states.locked_until IS NULL OR failure_states.locked_until <= $2)
        THEN $4::timestamptz
        ELSE failure_states.locked_until
    END
RETURNING child_id, consecutive_failures, last_failure_at, locked_until
`

func (r *FailureStateRepo) RecordFailure(ctx context.Context, childID uuid.UUID, lockThreshold int, lockFor time.Duration) (models.FailureState, error) {
	now := time.Now()
	rows, _ := r.DB.Query(ctx, recordFailure, childID, now, lockThreshold, now.Add(lockFor))
	state, err := pgx.CollectOneRow(rows, rowToFailureState)
	if err != nil {
		return state, wrapDBErr(err)
	}

	return state, nil
}

const resetFailureState = `-- name: ResetFailureState
UPDATE failure_states
SET consecutive_failures = 0, last_failure_at = NULL, locked_until = NULL
WHERE child_id = $1
`

// No row to reset is fine: the state is already zero
func (r *FailureStateRepo) ResetFailureState(ctx context.Context, childID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, resetFailureState, childID)
	if err != nil {
		return wrapDBErr(err)
	}
	return nil
}

func rowToFailureState(row pgx.CollectableRow) (models.FailureState, error) {
	var s models.FailureState
	err := row.Scan(&s.ChildID, &s.ConsecutiveFailures, &s.LastFailureAt, &s.LockedUntil)
	return s, err
}
