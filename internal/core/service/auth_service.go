package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const minPasswordLen = 8

// AuthService implements registration, login and password reset.
type AuthService struct {
	repo     ports.UserRepository
	tokens   ports.TokenService
	notifier ports.Notifier
	log      zerolog.Logger
}

func NewAuthService(repo ports.UserRepository, tokens ports.TokenService, notifier ports.Notifier, log zerolog.Logger) *AuthService {
	return &AuthService{repo: repo, tokens: tokens, notifier: notifier, log: log}
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || in.Username == "" {
		return nil, fmt.Errorf("%w: a valid email and username are required", domain.ErrValidation)
	}
	if len(in.Password) < minPasswordLen {
		return nil, domain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: string(hash),
		Status:       domain.AccountActive,
		Authorities:  []string{domain.AuthorityUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	if !user.CanAuthenticate() {
		return "", nil, domain.ErrAccountSuspended
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// ForgotPassword issues a reset token and hands it to the notifier as the
// notification's Secret. Unknown addresses are silently accepted.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.log.Debug().Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := s.tokens.IssueReset(user)
	if err != nil {
		return err
	}

	s.notifier.Notify(domain.Notification{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Type:      domain.NotifyPasswordReset,
		Message:   "A password reset was requested for your account.",
		Secret:    token,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return err
	}
	if claims.Kind != domain.TokenReset {
		return domain.ErrTokenKind
	}
	if len(newPassword) < minPasswordLen {
		return domain.ErrWeakPassword
	}

	user, err := s.repo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if user.ID != claims.UserID {
		return domain.ErrTokenMalformed
	}
	// the fingerprint no longer matches once this token (or any other) was used
	if !s.tokens.ValidateReset(claims, user) {
		return fmt.Errorf("reset password: %w", domain.ErrTokenExpired)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
