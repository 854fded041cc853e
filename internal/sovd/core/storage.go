package core

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// Archiver keeps a durable copy of a finished command and its chunks outside the database.
type Archiver interface {
	Archive(ctx context.Context, cmd *model.Command, chunks []*model.ResponseChunk) error
}
