// Package childauth orchestrates child logins end-to-end: failure guard
// before and after credential verification, token issuance on success,
// refresh rotation and logout as pass-throughs to the token manager.
package childauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/logger"
	"github.com/avelichko/kidlearn/internal/models"
	"github.com/avelichko/kidlearn/internal/repository"
	"github.com/avelichko/kidlearn/internal/service/childauth/guard"
	"github.com/avelichko/kidlearn/internal/service/notification"
	"github.com/avelichko/kidlearn/internal/service/risk"
	"github.com/avelichko/kidlearn/internal/service/tokenmanager"
)

// The PIN a timing-equalizing comparison runs against when the username is
// unknown. Never matches anything real
const dummyPIN = "0000"

type Config struct {
	// Hasher for child PINs. Defaults to bcrypt
	Hasher PINHasher

	// Login risk heuristics. Defaults to none
	RiskPolicy risk.Policy
}

type Service struct {
	hasher       PINHasher
	dummyPINHash string

	children repository.ChildRepo
	guard    *guard.Guard
	tokens   *tokenmanager.TokenManager
	notifier notification.Notifier
	policy   risk.Policy
	logger   logger.Logger
}

func NewService(
	cfg Config,
	children repository.ChildRepo,
	g *guard.Guard,
	tokens *tokenmanager.TokenManager,
	notifier notification.Notifier,
	l logger.Logger,
) (*Service, error) {
	if children == nil || g == nil || tokens == nil || notifier == nil {
		return nil, errors.New("children repo, guard, token manager and notifier must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}
	policy := cfg.RiskPolicy
	if policy == nil {
		policy = risk.NopPolicy{}
	}

	dummyPINHash, err := hasher.Hash(dummyPIN)
	if err != nil {
		return nil, fmt.Errorf("can't prepare dummy PIN hash. Err: %w", err)
	}

	return &Service{
		hasher:       hasher,
		dummyPINHash: dummyPINHash,
		children:     children,
		guard:        g,
		tokens:       tokens,
		notifier:     notifier,
		policy:       policy,
		logger:       l,
	}, nil
}

// Subject metadata returned alongside a token pair
type SessionSubject struct {
	ID       uuid.UUID
	Role     models.Role
	Username string
	ParentID uuid.UUID
}

type SessionResult struct {
	Pair    models.TokenPair
	Subject SessionSubject
}

// Login authenticates a child by username and PIN.
// Unknown username and wrong PIN both come back as apperrors.ErrInvalidCredentials,
// flagged accounts as apperrors.ErrSuspiciousActivity, locked ones as
// apperrors.ErrAccountLocked
func (s *Service) Login(ctx context.Context, username string, pin string, device notification.DeviceContext) (SessionResult, error) {
	child, err := s.children.GetActiveChildByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrChildNotFound) {
			// Burn a comparison so an unknown username takes as long as a
			// wrong PIN
			_ = s.hasher.Compare(s.dummyPINHash, pin)
			return SessionResult{}, apperrors.ErrInvalidCredentials
		}
		return SessionResult{}, err
	}

	decision, err := s.guard.Check(ctx, child.ID)
	if err != nil {
		return SessionResult{}, err
	}

	switch decision {
	case guard.Locked:
		return SessionResult{}, apperrors.ErrAccountLocked

	case guard.Suspicious:
		// The attempt counts against the account even though the PIN is
		// never looked at
		out, err := s.guard.RecordFailure(ctx, child.ID)
		if err != nil {
			return SessionResult{}, err
		}
		if out.BecameLocked {
			s.notifier.NotifySuspiciousActivity(ctx, child.ID, "account locked after repeated failed logins")
			return SessionResult{}, apperrors.ErrAccountLocked
		}
		return SessionResult{}, apperrors.ErrSuspiciousActivity
	}

	if err := s.hasher.Compare(child.PINHash, pin); err != nil {
		out, err := s.guard.RecordFailure(ctx, child.ID)
		if err != nil {
			return SessionResult{}, err
		}
		switch {
		case out.BecameLocked:
			s.notifier.NotifySuspiciousActivity(ctx, child.ID, "account locked after repeated failed logins")
			return SessionResult{}, apperrors.ErrAccountLocked
		case out.BecameSuspicious:
			s.notifier.NotifySuspiciousActivity(ctx, child.ID, "repeated failed login attempts")
		}
		return SessionResult{}, apperrors.ErrInvalidCredentials
	}

	if err := s.guard.Reset(ctx, child.ID); err != nil {
		return SessionResult{}, err
	}

	pair, err := s.tokens.Issue(ctx, models.Subject{ID: child.ID, Role: models.RoleChild})
	if err != nil {
		return SessionResult{}, err
	}

	s.notifier.NotifyLogin(ctx, child.ID, device)
	for _, sig := range s.policy.Evaluate(ctx, risk.LoginContext{
		ChildID:   child.ID,
		Username:  child.Username,
		At:        time.Now(),
		IP:        device.IP,
		UserAgent: device.UserAgent,
	}) {
		s.notifier.NotifySuspiciousActivity(ctx, child.ID, sig.Code+": "+sig.Details)
	}

	return SessionResult{
		Pair: pair,
		Subject: SessionSubject{
			ID:       child.ID,
			Role:     models.RoleChild,
			Username: child.Username,
			ParentID: child.ParentID,
		},
	}, nil
}

// SessionLifetime is the absolute session window length
func (s *Service) SessionLifetime() time.Duration {
	return s.tokens.SessionLifetime()
}

// Refresh rotates the presented refresh token. Never consults the failure
// guard: refresh tokens are not a brute-forceable PIN surface
func (s *Service) Refresh(ctx context.Context, refresh string) (SessionResult, error) {
	pair, subject, err := s.tokens.Rotate(ctx, refresh)
	if err != nil {
		s.reportTokenReuse(ctx, refresh, err)
		return SessionResult{}, err
	}

	return SessionResult{
		Pair:    pair,
		Subject: SessionSubject{ID: subject.ID, Role: subject.Role},
	}, nil
}

// Validate checks a bearer access token. Stateless
func (s *Service) Validate(ctx context.Context, access string) (models.Subject, error) {
	return s.tokens.ValidateAccess(ctx, access)
}

// Logout revokes one refresh token. Other sessions of the same child keep working
func (s *Service) Logout(ctx context.Context, refresh string) error {
	return s.tokens.Revoke(ctx, refresh)
}

// Sessions lists the subject's currently usable sessions (the ledger projection)
func (s *Service) Sessions(ctx context.Context, subjectID uuid.UUID) ([]models.Session, error) {
	return s.tokens.ListSessions(ctx, subjectID)
}

// DeactivateChild soft-deactivates the account and kills all its sessions.
// Accounts are never deleted while sessions may reference them
func (s *Service) DeactivateChild(ctx context.Context, childID uuid.UUID) error {
	if err := s.children.SetChildActive(ctx, childID, false); err != nil {
		return err
	}

	revoked, err := s.tokens.RevokeAllFor(ctx, childID)
	if err != nil {
		return err
	}
	s.logger.Info("child deactivated", "child_id", childID, "sessions_revoked", revoked)

	return nil
}

// A rotated token presented again is a replay from the rotation chain and a
// possible theft signal. The caller still just gets the token error
func (s *Service) reportTokenReuse(ctx context.Context, refresh string, rotateErr error) {
	if !errors.Is(rotateErr, apperrors.ErrTokenRevoked) {
		return
	}

	token, err := s.tokens.Inspect(ctx, refresh)
	if err != nil {
		s.logger.Warn("can't attribute reused refresh token", "error", err.Error())
		return
	}
	if token.Role != models.RoleChild {
		return
	}

	s.notifier.NotifySuspiciousActivity(ctx, token.SubjectID, "revoked refresh token presented again (possible token theft)")
}
