package ports

import (
	"context"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
	ValidateEndpoint(endpoint domain.NotificationEndpoint) error
}

// NotificationDispatcher hands notifications to background workers. Dispatch
// never blocks the caller.
type NotificationDispatcher interface {
	Dispatch(n domain.Notification)
}
