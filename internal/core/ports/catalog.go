package ports

import (
	"context"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// ListingRepository is the read side of the external listing catalogue.
type ListingRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Listing, error)
}

// CartRepository exposes the external cart store.
type CartRepository interface {
	FindByUser(ctx context.Context, userID string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}
