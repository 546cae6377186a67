// Package risk holds pluggable login risk heuristics. Policies only produce
// signals for the notifier; they never block an authentication.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Everything a policy may look at for one successful login
type LoginContext struct {
	ChildID   uuid.UUID
	Username  string
	At        time.Time
	IP        string
	UserAgent string
}

type Signal struct {
	Code    string
	Details string
}

type Policy interface {
	Evaluate(ctx context.Context, login LoginContext) []Signal
}

// NightHoursPolicy flags logins inside a nightly quiet window,
// e.g. From=23, Until=6 flags 23:00-05:59 local time
type NightHoursPolicy struct {
	From  int
	Until int
}

func (p NightHoursPolicy) Evaluate(_ context.Context, login LoginContext) []Signal {
	hour := login.At.Hour()

	inWindow := false
	switch {
	case p.From <= p.Until:
		inWindow = hour >= p.From && hour < p.Until
	default: // window wraps midnight
		inWindow = hour >= p.From || hour < p.Until
	}

	if !inWindow {
		return nil
	}

	return []Signal{{
		Code:    "night_login",
		Details: fmt.Sprintf("login at %02d:%02d is inside quiet hours %02d:00-%02d:00", hour, login.At.Minute(), p.From, p.Until),
	}}
}

// NopPolicy reports nothing. Default when no heuristics are configured
type NopPolicy struct{}

func (NopPolicy) Evaluate(context.Context, LoginContext) []Signal { return nil }
