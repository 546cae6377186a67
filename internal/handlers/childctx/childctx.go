package childctx

import (
	"context"

	"github.com/avelichko/kidlearn/internal/models"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// Create a new context with the authenticated subject
func New(ctx context.Context, s models.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// Extract the authenticated subject from the context
func FromContext(ctx context.Context) (models.Subject, bool) {
	s, ok := ctx.Value(subjectKey).(models.Subject)
	return s, ok
}
