package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/handlers/middleware"
	"github.com/avelichko/kidlearn/internal/logger"
	"github.com/avelichko/kidlearn/internal/models"
	"github.com/avelichko/kidlearn/internal/service/childauth"
	"github.com/avelichko/kidlearn/internal/service/notification"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(auth authService, l logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(auth)

	api := http.NewServeMux()
	api.Handle("POST /login", handleLogin(auth, l))
	api.Handle("POST /refresh", handleRefresh(auth, l))
	api.Handle("GET /validate", handleValidate(auth))
	api.Handle("POST /logout", withAuth(handleLogout(auth, l)))
	api.Handle("GET /sessions", withAuth(handleListSessions(auth, l)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", api))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}

type authService interface {
	// Authenticate child by username and PIN
	// Has to return apperrors.ErrInvalidCredentials for unknown username or
	// wrong PIN (indistinguishable), apperrors.ErrSuspiciousActivity while
	// flagged, apperrors.ErrAccountLocked while locked
	Login(ctx context.Context, username string, pin string, device notification.DeviceContext) (childauth.SessionResult, error)

	// Rotate refresh token into a fresh pair
	// Has to return a token error (not found / revoked / expired) when the
	// presented token is unusable
	Refresh(ctx context.Context, refresh string) (childauth.SessionResult, error)

	// Check a bearer access token
	Validate(ctx context.Context, access string) (models.Subject, error)

	// Revoke one refresh token
	Logout(ctx context.Context, refresh string) error

	// List currently usable sessions of the subject
	Sessions(ctx context.Context, subjectID uuid.UUID) ([]models.Session, error)

	// Absolute session window, for the expiresInSeconds response field
	SessionLifetime() time.Duration
}
