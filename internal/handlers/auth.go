package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/handlers/childctx"
	"github.com/avelichko/kidlearn/internal/handlers/middleware"
	"github.com/avelichko/kidlearn/internal/handlers/render"
	"github.com/avelichko/kidlearn/internal/logger"
	"github.com/avelichko/kidlearn/internal/service/childauth"
	"github.com/avelichko/kidlearn/internal/service/notification"
)

type subjectResponse struct {
	ID       uuid.UUID `json:"id"`
	Role     string    `json:"role"`
	Username string    `json:"username,omitempty"`
	ParentID uuid.UUID `json:"parentId,omitempty"`
}

type tokenPairResponse struct {
	AccessToken      string          `json:"accessToken"`
	RefreshToken     string          `json:"refreshToken"`
	ExpiresInSeconds int             `json:"expiresInSeconds"`
	Subject          subjectResponse `json:"subject"`
}

func sessionResultResponse(result childauth.SessionResult, lifetime time.Duration) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      result.Pair.Access.Value,
		RefreshToken:     result.Pair.Refresh.Value,
		ExpiresInSeconds: int(lifetime.Seconds()),
		Subject: subjectResponse{
			ID:       result.Subject.ID,
			Role:     string(result.Subject.Role),
			Username: result.Subject.Username,
			ParentID: result.Subject.ParentID,
		},
	}
}

func handleLogin(auth authService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		PIN      string `json:"pin" validate:"required,numeric,min=4,max=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			// Malformed requests never reach the failure guard
			return
		}

		device := notification.DeviceContext{
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
		}

		result, err := auth.Login(r.Context(), data.Username, data.PIN, device)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid username or PIN", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrSuspiciousActivity):
				render.ServiceError(w, "Too many failed attempts, slow down", http.StatusTooManyRequests)
			case errors.Is(err, apperrors.ErrAccountLocked):
				render.ServiceError(w, "Account temporarily locked", http.StatusLocked)
			case errors.Is(err, apperrors.ErrUnavailable):
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			default:
				l.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, sessionResultResponse(result, auth.SessionLifetime()))
	})
}

func handleRefresh(auth authService, l logger.Logger) http.Handler {
	type RefreshRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RefreshRequest](w, r)
		if err != nil {
			return
		}

		result, err := auth.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUnavailable):
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			case isTokenError(err):
				render.ServiceError(w, "Refresh token invalid", http.StatusUnauthorized)
			default:
				l.Error("refresh failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, sessionResultResponse(result, auth.SessionLifetime()))
	})
}

func handleValidate(auth authService) http.Handler {
	type ValidateResponse struct {
		Valid   bool            `json:"valid"`
		Subject subjectResponse `json:"subject"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := middleware.BearerToken(r)
		if err != nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		subject, err := auth.Validate(r.Context(), access)
		if err != nil {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		render.JSON(w, ValidateResponse{
			Valid:   true,
			Subject: subjectResponse{ID: subject.ID, Role: string(subject.Role)},
		})
	})
}

func handleLogout(auth authService, l logger.Logger) http.Handler {
	type LogoutRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type LogoutResponse struct {
		Success bool `json:"success"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LogoutRequest](w, r)
		if err != nil {
			return
		}

		err = auth.Logout(r.Context(), data.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUnavailable):
				render.ServiceError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			case isTokenError(err):
				render.ServiceError(w, "Refresh token invalid", http.StatusUnauthorized)
			default:
				l.Error("logout failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, LogoutResponse{Success: true})
	})
}

func handleListSessions(auth authService, l logger.Logger) http.Handler {
	type SessionResponse struct {
		ID        uuid.UUID `json:"id"`
		IssuedAt  time.Time `json:"issuedAt"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	type SessionListResponse struct {
		Sessions []SessionResponse `json:"sessions"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := childctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		sessions, err := auth.Sessions(r.Context(), subject.ID)
		if err != nil {
			l.Error("session listing failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
		for _, s := range sessions {
			resp.Sessions = append(resp.Sessions, SessionResponse{ID: s.ID, IssuedAt: s.IssuedAt, ExpiresAt: s.ExpiresAt})
		}
		render.JSON(w, resp)
	})
}

func isTokenError(err error) bool {
	return errors.Is(err, apperrors.ErrTokenNotFound) ||
		errors.Is(err, apperrors.ErrTokenRevoked) ||
		errors.Is(err, apperrors.ErrTokenExpired)
}
