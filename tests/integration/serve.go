package integration

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/kidlearn/internal/handlers"
	"github.com/avelichko/kidlearn/internal/logger"
	"github.com/avelichko/kidlearn/internal/repository/postgres"
	"github.com/avelichko/kidlearn/internal/service/childauth"
	"github.com/avelichko/kidlearn/internal/service/childauth/guard"
	"github.com/avelichko/kidlearn/internal/service/notification"
	"github.com/avelichko/kidlearn/internal/service/tokenmanager"
	"github.com/avelichko/kidlearn/internal/testutil"
)

type Services struct {
	Auth     *childauth.Service
	Children *postgres.ChildRepo
}

// RegisterChild provisions a child account the way the parent app would
func (s Services) RegisterChild(t *testing.T, username string, pin string) uuid.UUID {
	t.Helper()

	hash, err := childauth.DefaultHasher.Hash(pin)
	require.NoError(t, err)

	child, err := s.Children.CreateChild(t.Context(), uuid.New(), username, hash)
	require.NoError(t, err, "child should be created without errors")
	return child.ID
}

type discardNotifier struct{}

func (discardNotifier) NotifyLogin(context.Context, uuid.UUID, notification.DeviceContext) {}
func (discardNotifier) NotifySuspiciousActivity(context.Context, uuid.UUID, string) {}

// Create db transaction and run server with that connection (one connection
// cause one transaction). Everything the test writes gets rolled back
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		// Initialize repositories
		children := &postgres.ChildRepo{DB: tx}
		states := &postgres.FailureStateRepo{DB: tx}
		tokens := &postgres.RefreshTokenRepo{DB: tx}

		// Initialize services
		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, tokens)
		require.NoError(t, err, "token manager should be created without errors")

		failureGuard, err := guard.New(guard.Config{}, states)
		require.NoError(t, err, "failure guard should be created without errors")

		auth, err := childauth.NewService(childauth.Config{}, children, failureGuard, tokenManager, discardNotifier{}, nil)
		require.NoError(t, err, "auth service should be created without errors")

		// Run http server with the router in transaction
		srv := httptest.NewServer(handlers.NewRouter(auth, logger.NewNoOpLogger()))
		defer srv.Close()

		fn(srv.URL, Services{
			Auth:     auth,
			Children: children,
		})
	})
}
