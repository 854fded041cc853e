package core

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// Repository groups the persistence ports. The SQL adapter implements all of them.
type Repository interface {
	Vehicle() VehicleRepository
	User() UserRepository
	Command() CommandRepository
}

// VehicleRepository defines the interface for interacting with vehicle records.
type VehicleRepository interface {
	// Get retrieves a vehicle by its ID. Returns util.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*model.Vehicle, error)

	// Create registers a new vehicle.
	Create(ctx context.Context, vehicle *model.Vehicle) error

	// List returns all registered vehicles.
	List(ctx context.Context) ([]*model.Vehicle, error)
}

// UserRepository defines the interface for interacting with operator records.
type UserRepository interface {
	// Get retrieves a user by its ID. Returns util.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*model.User, error)

	// Create registers a new user.
	Create(ctx context.Context, user *model.User) error
}

// CommandRepository defines the interface for command and response chunk records.
type CommandRepository interface {
	// Create inserts a new command.
	Create(ctx context.Context, cmd *model.Command) error

	// Get retrieves a command by its ID. Returns util.ErrNotFound when absent.
	Get(ctx context.Context, id string) (*model.Command, error)

	// UpdateStatus applies update only if the stored status is one of from.
	// Returns util.ErrInvalidTransition when the stored status does not match.
	UpdateStatus(ctx context.Context, id string, from []model.CommandStatus, update model.StatusUpdate) error

	// List returns commands matching filter, newest first.
	List(ctx context.Context, filter model.CommandFilter) ([]*model.Command, error)

	// CreateResponse appends a chunk. The command must be in progress, the
	// sequence must be the next expected one and no final chunk may exist yet.
	CreateResponse(ctx context.Context, chunk *model.ResponseChunk) error

	// ListResponses returns the chunks of a command ordered by sequence number.
	ListResponses(ctx context.Context, commandID string) ([]*model.ResponseChunk, error)
}
