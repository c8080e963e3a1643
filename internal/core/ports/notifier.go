package ports

import (
	"context"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// Notifier accepts notifications without blocking the caller.
type Notifier interface {
	Notify(n domain.Notification)
}

// NotificationStore persists notifications for later retrieval by the user.
type NotificationStore interface {
	Save(ctx context.Context, n *domain.Notification) error
}
