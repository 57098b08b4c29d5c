package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishRevocation(ctx context.Context, entry core.RevocationEntry) error
}

// RevocationHandler applies a revocation received from another instance
type RevocationHandler func(ctx context.Context, entry core.RevocationEntry) error
