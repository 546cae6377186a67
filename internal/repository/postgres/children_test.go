package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/testutil"
)

func Test_ChildRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create child ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}
			parentID := uuid.New()

			child, err := repo.CreateChild(t.Context(), parentID, "alice", "pin-hash")

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, child.ID)
			require.Equal(t, parentID, child.ParentID)
			require.Equal(t, "alice", child.Username)
			require.Equal(t, "pin-hash", child.PINHash)
			require.True(t, child.Active, "new accounts start active")
			require.WithinDuration(t, time.Now(), child.CreatedAt, time.Second)
		})
	})

	t.Run("username must be unique", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}
			_, err := repo.CreateChild(t.Context(), uuid.New(), "alice", "pin-hash")
			require.NoError(t, err)

			_, err = repo.CreateChild(t.Context(), uuid.New(), "alice", "other-hash")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrChildAlreadyExists)
		})
	})

	t.Run("get active by username", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}
			created, err := repo.CreateChild(t.Context(), uuid.New(), "alice", "pin-hash")
			require.NoError(t, err)

			got, err := repo.GetActiveChildByUsername(t.Context(), "alice")

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("deactivated child invisible by username", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}
			created, err := repo.CreateChild(t.Context(), uuid.New(), "alice", "pin-hash")
			require.NoError(t, err)

			err = repo.SetChildActive(t.Context(), created.ID, false)
			require.NoError(t, err)

			_, err = repo.GetActiveChildByUsername(t.Context(), "alice")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrChildNotFound)

			// Still reachable by id for audit and re-activation
			got, err := repo.GetChildByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.False(t, got.Active)
		})
	})

	t.Run("unknown username", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}

			_, err := repo.GetActiveChildByUsername(t.Context(), "nobody")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrChildNotFound)
		})
	})

	t.Run("update pin hash", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}
			created, err := repo.CreateChild(t.Context(), uuid.New(), "alice", "pin-hash")
			require.NoError(t, err)

			err = repo.UpdatePINHash(t.Context(), created.ID, "new-hash")
			require.NoError(t, err)

			got, err := repo.GetChildByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "new-hash", got.PINHash)
		})
	})

	t.Run("update pin hash for unknown child", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := ChildRepo{DB: tx}

			err := repo.UpdatePINHash(t.Context(), uuid.New(), "new-hash")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrChildNotFound)
		})
	})
}
