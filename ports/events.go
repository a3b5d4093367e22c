package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// EventPublisher notifies other services about authentication events
type EventPublisher interface {
	PublishLogin(ctx context.Context, session core.Session) error
}
