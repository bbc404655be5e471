package core

import (
	"context"

	"courier-dispatch/internal/dispatch/domain/dto"
)

type IBroadcaster interface {
	Publish(ctx context.Context, b dto.Broadcast) error
	IsAlive() error
	Close() error
}
