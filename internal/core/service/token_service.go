package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

const (
	DefaultSessionTTL = 10 * time.Hour
	DefaultResetTTL   = 10 * time.Minute
)

// tokenClaims is the signed payload. Subject carries the e-mail.
type tokenClaims struct {
	UserID      string           `json:"userId"`
	Kind        domain.TokenKind `json:"typ"`
	Fingerprint string           `json:"pwf,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 identity tokens. It holds no mutable
// state after construction.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithTTLs overrides the session and reset token lifetimes. Non-positive
// values keep the defaults.
func WithTTLs(session, reset time.Duration) TokenOption {
	return func(s *TokenService) {
		if session > 0 {
			s.sessionTTL = session
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:     []byte(secret),
		sessionTTL: DefaultSessionTTL,
		resetTTL:   DefaultResetTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue returns a session token for user.
func (s *TokenService) Issue(user *domain.User) (string, error) {
	return s.sign(user, domain.TokenSession, s.sessionTTL)
}

// IssueReset returns a short-lived password-reset token for user.
func (s *TokenService) IssueReset(user *domain.User) (string, error) {
	return s.sign(user, domain.TokenReset, s.resetTTL)
}

func (s *TokenService) sign(user *domain.User, kind domain.TokenKind, ttl time.Duration) (string, error) {
	if user == nil || user.Email == "" || user.ID == "" {
		return "", fmt.Errorf("issue token: %w", domain.ErrTokenMalformed)
	}

	now := s.now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		UserID: user.ID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	if kind == domain.TokenReset {
		claims.Fingerprint = s.fingerprint(user.PasswordHash)
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// fingerprint is a keyed digest of a password hash. It changes whenever the
// password does, which retires every reset token issued before.
func (s *TokenService) fingerprint(passwordHash string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16])
}

// Verify checks signature, expiry and claim shape.
func (s *TokenService) Verify(token string) (*domain.TokenClaims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.Subject == "" || claims.UserID == "" || claims.IssuedAt == nil {
		return nil, domain.ErrTokenMalformed
	}
	if claims.Kind != domain.TokenSession && claims.Kind != domain.TokenReset {
		return nil, domain.ErrTokenMalformed
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, domain.ErrTokenMalformed
	}
	if claims.Kind == domain.TokenReset && claims.Fingerprint == "" {
		return nil, domain.ErrTokenMalformed
	}

	return &domain.TokenClaims{
		Subject:   claims.Subject,
		UserID:    claims.UserID,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,

		PasswordFingerprint: claims.Fingerprint,
	}, nil
}

// ValidateReset reports whether reset claims were issued against user's
// current password.
func (s *TokenService) ValidateReset(claims *domain.TokenClaims, user *domain.User) bool {
	if claims == nil || user == nil || claims.Kind != domain.TokenReset || claims.UserID != user.ID {
		return false
	}
	want := s.fingerprint(user.PasswordHash)
	return hmac.Equal([]byte(claims.PasswordFingerprint), []byte(want))
}

// ValidateForUser reports whether token verifies and belongs to expectedSubject.
func (s *TokenService) ValidateForUser(token, expectedSubject string) bool {
	claims, err := s.Verify(token)
	return err == nil && claims.Subject == expectedSubject
}

// ValidateOwnership reports whether token verifies and carries expectedUserID.
func (s *TokenService) ValidateOwnership(token, expectedUserID string) bool {
	claims, err := s.Verify(token)
	return err == nil && claims.UserID == expectedUserID
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.ErrTokenSignature
	default:
		// malformed segments, undecodable or mistyped claims, missing exp
		return fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}
}
