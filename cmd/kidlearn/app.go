package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avelichko/kidlearn/internal/db"
	"github.com/avelichko/kidlearn/internal/handlers"
	"github.com/avelichko/kidlearn/internal/logger"
	"github.com/avelichko/kidlearn/internal/observability"
	"github.com/avelichko/kidlearn/internal/repository"
	"github.com/avelichko/kidlearn/internal/repository/postgres"
	"github.com/avelichko/kidlearn/internal/service/childauth"
	"github.com/avelichko/kidlearn/internal/service/childauth/guard"
	"github.com/avelichko/kidlearn/internal/service/notification"
	"github.com/avelichko/kidlearn/internal/service/risk"
	"github.com/avelichko/kidlearn/internal/service/tokenmanager"
)

const (
	// How often revoked and expired ledger rows get garbage-collected, and
	// how long they are kept around for audit before that
	tokenGCInterval  = time.Hour
	tokenGCRetention = 24 * time.Hour
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	storage repository.Storage
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger. Err: %w", err)
	}

	if err := observability.InitSentry(c.SentryDSN, c.Environment); err != nil {
		return nil, fmt.Errorf("error while initializing sentry. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.RefreshTokens())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	failureGuard, err := guard.New(guard.Config{}, storage.FailureStates())
	if err != nil {
		return nil, fmt.Errorf("error while creating failure guard. Err: %w", err)
	}

	notifier := &notification.LogNotifier{Logger: l.WithGroup("notification")}

	authService, err := childauth.NewService(
		childauth.Config{RiskPolicy: risk.NightHoursPolicy{From: 23, Until: 6}},
		storage.Children(),
		failureGuard,
		tokenManager,
		notifier,
		l,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(authService, l),
		storage:    storage,
		logger:     l,
	}, nil
}

// Run starts the http server and the ledger GC; closes gracefully on context
// cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go s.collectStaleTokens(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close connections gracefully
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

// collectStaleTokens periodically deletes revoked and expired ledger rows
// that are past the audit retention window
func (s *ServerApp) collectStaleTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.storage.RefreshTokens().DeleteStaleTokens(ctx, time.Now().Add(-tokenGCRetention))
			if err != nil {
				s.logger.Warn("token GC failed", "error", err.Error())
				continue
			}
			if deleted > 0 {
				s.logger.Info("token GC done", "deleted", deleted)
			}
		}
	}
}
