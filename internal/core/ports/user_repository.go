package ports

import (
	"context"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// UserRepository defines persistence for accounts in the identity store.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create returns domain.ErrUserExists when the e-mail is taken.
	Create(ctx context.Context, user *domain.User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}
