package core

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// Executor runs one command against its vehicle. It never returns an error:
// every outcome is reported through the Recorder before Execute returns.
type Executor interface {
	Execute(ctx context.Context, cmd *model.Command, rec Recorder)
}

// Recorder is the write path an Executor uses to report progress. Each call
// persists first and then publishes the matching event.
type Recorder interface {
	// RecordResponse persists a chunk and publishes a response event.
	RecordResponse(ctx context.Context, commandID string, payload map[string]any, seq int, isFinal bool) (*model.ResponseChunk, error)

	// CompleteCommand marks the command completed and publishes a status event.
	CompleteCommand(ctx context.Context, commandID string) error

	// FailCommand marks the command failed and publishes an error event.
	FailCommand(ctx context.Context, commandID string, message string) error
}
