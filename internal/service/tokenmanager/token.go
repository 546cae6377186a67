package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avelichko/kidlearn/internal/apperrors"
	"github.com/avelichko/kidlearn/internal/models"
	"github.com/avelichko/kidlearn/internal/repository"
)

const (
	// Sessions are absolute: access token, refresh token and the session
	// itself all expire 20 minutes after issuance. Rotation mints a fresh
	// window, nothing slides.
	defaultSessionLifetime = 20 * time.Minute
	defaultSigningMethod   = "HS256"

	refreshTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	SubjectID uuid.UUID   `json:"sid"`
	Role      models.Role `json:"role"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set then default is used
	Alg string

	// Absolute session lifetime shared by both tokens
	// If not set then default is used
	SessionLifetime time.Duration
}

type TokenManager struct {
	key      string
	alg      jwt.SigningMethod
	lifetime time.Duration

	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if refreshRepo == nil {
		return nil, errors.New("refresh token repo must not be nil")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.SessionLifetime == 0 {
		cfg.SessionLifetime = defaultSessionLifetime
	}

	return &TokenManager{
		key:         cfg.SecretKey,
		alg:         jwt.GetSigningMethod(cfg.Alg),
		lifetime:    cfg.SessionLifetime,
		refreshRepo: refreshRepo,
	}, nil
}

func (m *TokenManager) SessionLifetime() time.Duration {
	return m.lifetime
}

// Issue mints a token pair for the subject and persists the refresh token
// in the ledger. Every call produces distinct token values, also for the
// same subject at the same instant (multi-device logins)
func (m *TokenManager) Issue(ctx context.Context, subject models.Subject) (models.TokenPair, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.lifetime)

	access, err := m.signAccess(subject, now, expiresAt)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := randomToken()
	if err != nil {
		return models.TokenPair{}, err
	}

	_, err = m.refreshRepo.SaveToken(ctx, models.RefreshToken{
		ID:        uuid.New(),
		SubjectID: subject.ID,
		Role:      subject.Role,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: expiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: expiresAt},
	}, nil
}

// Rotate retires the presented refresh token and mints its successor pair.
// The retire-and-mint is one conditional store operation: under concurrent
// calls with the same token exactly one caller gets a pair, the rest get
// token errors
func (m *TokenManager) Rotate(ctx context.Context, presented string) (models.TokenPair, models.Subject, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.lifetime)

	refresh, err := randomToken()
	if err != nil {
		return models.TokenPair{}, models.Subject{}, err
	}

	successor, err := m.refreshRepo.RotateToken(ctx, presented, models.RefreshToken{
		ID:        uuid.New(),
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return models.TokenPair{}, models.Subject{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	subject := models.Subject{ID: successor.SubjectID, Role: successor.Role}
	access, err := m.signAccess(subject, now, expiresAt)
	if err != nil {
		return models.TokenPair{}, models.Subject{}, err
	}

	pair := models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: expiresAt},
		Refresh: models.IssuedToken{Value: successor.Token, ExpiresAt: successor.ExpiresAt},
	}
	return pair, subject, nil
}

// Revoke retires one refresh token (logout). Other sessions of the same
// subject stay untouched
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	err := m.refreshRepo.RevokeToken(ctx, refresh)
	if err != nil {
		return fmt.Errorf("error while revoking refresh token. Err: %w", err)
	}
	return nil
}

// RevokeAllFor retires every live refresh token of the subject. Used when an
// account is deactivated and all its sessions must die
func (m *TokenManager) RevokeAllFor(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	revoked, err := m.refreshRepo.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("error while revoking subject tokens. Err: %w", err)
	}
	return revoked, nil
}

// Inspect returns the ledger row for a refresh token whatever its state.
// Used for rotation-chain audit, e.g. attributing a reused token to its subject
func (m *TokenManager) Inspect(ctx context.Context, refresh string) (models.RefreshToken, error) {
	return m.refreshRepo.GetToken(ctx, refresh)
}

// ValidateAccess verifies signature and expiry. Stateless, no store access
func (m *TokenManager) ValidateAccess(ctx context.Context, access string) (models.Subject, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Subject{}, fmt.Errorf("%w: %w", apperrors.ErrAccessInvalid, err)
	}

	return models.Subject{ID: claims.SubjectID, Role: claims.Role}, nil
}

// ListSessions is the audit projection over the ledger: every non-revoked,
// non-expired refresh token row is one live session
func (m *TokenManager) ListSessions(ctx context.Context, subjectID uuid.UUID) ([]models.Session, error) {
	tokens, err := m.refreshRepo.ListActiveTokens(ctx, subjectID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("error while listing sessions. Err: %w", err)
	}

	sessions := make([]models.Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, models.Session{ID: t.ID, IssuedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	return sessions, nil
}

func (m *TokenManager) signAccess(subject models.Subject, now time.Time, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			SubjectID: subject.ID,
			Role:      subject.Role,
		},
	)

	access, err := token.SignedString([]byte(m.key))
	if err != nil {
		return "", fmt.Errorf("error while signing access token. Err: %w", err)
	}
	return access, nil
}

func randomToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating refresh token. Err: %w", err)
	}
	return hex.EncodeToString(b), nil
}
