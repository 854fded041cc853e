package core

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// EventPublisher delivers command events to the live subscribers of a command.
type EventPublisher interface {
	Publish(ctx context.Context, commandID string, event model.Event) error
}
