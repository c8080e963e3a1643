package ports

import (
	"context"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// RegisterInput carries the fields needed to open an account.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	// ForgotPassword never reports whether the e-mail exists.
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// TokenService issues and verifies identity tokens.
type TokenService interface {
	Issue(user *domain.User) (string, error)
	IssueReset(user *domain.User) (string, error)
	Verify(token string) (*domain.TokenClaims, error)
	ValidateForUser(token, expectedSubject string) bool
	ValidateOwnership(token, expectedUserID string) bool
	ValidateReset(claims *domain.TokenClaims, user *domain.User) bool
}
