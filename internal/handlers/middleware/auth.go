package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/avelichko/kidlearn/internal/handlers/childctx"
	"github.com/avelichko/kidlearn/internal/handlers/render"
	"github.com/avelichko/kidlearn/internal/models"
)

type accessValidator interface {
	Validate(ctx context.Context, access string) (models.Subject, error)
}

// BearerToken extracts the token from an 'Authorization: Bearer ...' header
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("bearer token missing")
	}
	return token, nil
}

// AuthMiddleware validates the bearer access token and puts the subject into
// the request context
func AuthMiddleware(v accessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, err := BearerToken(r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			subject, err := v.Validate(r.Context(), access)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := childctx.New(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
