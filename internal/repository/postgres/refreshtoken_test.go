package postgres

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/models"
	"github.com/avelichko/kidlearn/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func makeToken(subjectID uuid.UUID, value string, expiresAt time.Time) models.RefreshToken {
	return models.RefreshToken{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Role:      models.RoleChild,
		Token:     value,
		CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
		ExpiresAt: expiresAt,
	}
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	subjectID := uuid.New()
	farFuture := mustParseTime("2200-01-01 03:00:02Z")

	t.Run("save token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := makeToken(subjectID, "secret-token", farFuture)

			got, err := repo.SaveToken(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.SubjectID, got.SubjectID)
			require.Equal(t, models.RoleChild, got.Role)
			require.Equal(t, token.Token, got.Token)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, time.Microsecond)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Microsecond)
			require.False(t, got.Revoked, "fresh token must not be revoked")
			require.Nil(t, got.ReplacedBy, "fresh token must not have a successor")
		})
	})

	t.Run("get token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := makeToken(subjectID, "secret-token", farFuture)
			_, err := repo.SaveToken(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.GetToken(t.Context(), token.Token)

			require.NoError(t, err)
			require.Equal(t, token.Token, got.Token)
			require.Equal(t, token.SubjectID, got.SubjectID)
		})
	})

	t.Run("get unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.GetToken(t.Context(), "never-issued")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("rotate links the chain", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := makeToken(subjectID, "secret-token", farFuture)
			_, err := repo.SaveToken(t.Context(), token)
			require.NoError(t, err)

			successor := models.RefreshToken{
				ID:        uuid.New(),
				Token:     "successor-token",
				CreatedAt: time.Now().Truncate(time.Second),
				ExpiresAt: farFuture,
			}
			got, err := repo.RotateToken(t.Context(), token.Token, successor)

			require.NoError(t, err)
			require.Equal(t, "successor-token", got.Token)
			require.Equal(t, subjectID, got.SubjectID, "successor must inherit the subject")
			require.Equal(t, models.RoleChild, got.Role, "successor must inherit the role")
			require.False(t, got.Revoked)

			retired, err := repo.GetToken(t.Context(), token.Token)
			require.NoError(t, err)
			require.True(t, retired.Revoked, "rotated token must be revoked")
			require.NotNil(t, retired.ReplacedBy)
			require.Equal(t, "successor-token", *retired.ReplacedBy, "chain link must point at the successor")
		})
	})

	t.Run("rotate same token twice fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := makeToken(subjectID, "secret-token", farFuture)
			_, err := repo.SaveToken(t.Context(), token)
			require.NoError(t, err)

			_, err = repo.RotateToken(t.Context(), token.Token, makeToken(subjectID, "first", farFuture))
			require.NoError(t, err)

			_, err = repo.RotateToken(t.Context(), token.Token, makeToken(subjectID, "second", farFuture))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
		})
	})

	t.Run("rotate expired token fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			expired := makeToken(subjectID, "expired-token", mustParseTime("2024-01-01 19:20:01Z"))
			_, err := repo.SaveToken(t.Context(), expired)
			require.NoError(t, err)

			successor := makeToken(subjectID, "should-not-exist", farFuture)
			successor.CreatedAt = time.Now()
			_, err = repo.RotateToken(t.Context(), expired.Token, successor)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

			got, err := repo.GetToken(t.Context(), expired.Token)
			require.NoError(t, err)
			require.False(t, got.Revoked, "failed rotation must not retire the expired token")
		})
	})

	t.Run("rotate unknown token fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.RotateToken(t.Context(), "never-issued", makeToken(subjectID, "successor", farFuture))

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})
	})

	t.Run("revoke token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := makeToken(subjectID, "secret-token", farFuture)
			_, err := repo.SaveToken(t.Context(), token)
			require.NoError(t, err)

			err = repo.RevokeToken(t.Context(), token.Token)
			require.NoError(t, err)

			got, err := repo.GetToken(t.Context(), token.Token)
			require.NoError(t, err)
			require.True(t, got.Revoked)
			require.Nil(t, got.ReplacedBy, "revocation is not rotation, no successor")

			err = repo.RevokeToken(t.Context(), token.Token)
			require.Error(t, err, "second revoke must fail")
			assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
		})
	})

	t.Run("revoke keeps other sessions alive", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			a := makeToken(subjectID, "session-a", farFuture)
			b := makeToken(subjectID, "session-b", farFuture)
			_, err := repo.SaveToken(t.Context(), a)
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), b)
			require.NoError(t, err)

			err = repo.RevokeToken(t.Context(), a.Token)
			require.NoError(t, err)

			got, err := repo.GetToken(t.Context(), b.Token)
			require.NoError(t, err)
			require.False(t, got.Revoked, "revoking session A must not touch session B")
		})
	})

	t.Run("revoke all for subject", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			otherSubject := uuid.New()
			_, err := repo.SaveToken(t.Context(), makeToken(subjectID, "mine-1", farFuture))
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(subjectID, "mine-2", farFuture))
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(otherSubject, "not-mine", farFuture))
			require.NoError(t, err)

			revoked, err := repo.RevokeAllForSubject(t.Context(), subjectID)

			require.NoError(t, err)
			require.EqualValues(t, 2, revoked)

			got, err := repo.GetToken(t.Context(), "not-mine")
			require.NoError(t, err)
			require.False(t, got.Revoked, "other subject's token must stay usable")
		})
	})

	t.Run("list active tokens", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			_, err := repo.SaveToken(t.Context(), makeToken(subjectID, "live", farFuture))
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(subjectID, "expired", mustParseTime("2024-01-01 19:20:01Z")))
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(subjectID, "revoked", farFuture))
			require.NoError(t, err)
			err = repo.RevokeToken(t.Context(), "revoked")
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(uuid.New(), "foreign", farFuture))
			require.NoError(t, err)

			got, err := repo.ListActiveTokens(t.Context(), subjectID, time.Now())

			require.NoError(t, err)
			require.Len(t, got, 1, "only the live own token should be listed")
			require.Equal(t, "live", got[0].Token)
		})
	})

	t.Run("delete stale tokens", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			_, err := repo.SaveToken(t.Context(), makeToken(subjectID, "old-expired", mustParseTime("2024-01-01 19:20:01Z")))
			require.NoError(t, err)
			_, err = repo.SaveToken(t.Context(), makeToken(subjectID, "old-revoked", farFuture))
			require.NoError(t, err)
			err = repo.RevokeToken(t.Context(), "old-revoked")
			require.NoError(t, err)

			fresh := makeToken(subjectID, "fresh", farFuture)
			fresh.CreatedAt = time.Now()
			_, err = repo.SaveToken(t.Context(), fresh)
			require.NoError(t, err)

			deleted, err := repo.DeleteStaleTokens(t.Context(), time.Now().Add(-time.Hour))

			require.NoError(t, err)
			require.EqualValues(t, 2, deleted)

			_, err = repo.GetToken(t.Context(), "fresh")
			require.NoError(t, err, "fresh token must survive GC")
		})
	})
}

// Concurrency needs real parallel connections, so this test works on the pool
// directly instead of a rolled-back transaction
func Test_RefreshTokenRepo_ConcurrentRotate(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	repo := RefreshTokenRepo{DB: pg.Pool}
	subjectID := uuid.New()
	token := makeToken(subjectID, "contested-token", mustParseTime("2200-01-01 03:00:02Z"))
	_, err := repo.SaveToken(t.Context(), token)
	require.NoError(t, err)

	const workers = 16

	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successor := makeToken(subjectID, fmt.Sprintf("successor-%d", i), token.ExpiresAt)
			successor.CreatedAt = time.Now()
			_, results[i] = repo.RotateToken(t.Context(), token.Token, successor)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "losers must see the token as revoked")
	}
	require.Equal(t, 1, winners, "exactly one concurrent rotation must win")

	// The ledger must hold exactly one non-revoked descendant
	live, err := repo.ListActiveTokens(t.Context(), subjectID, time.Now())
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Contains(t, live[0].Token, "successor-")
}
