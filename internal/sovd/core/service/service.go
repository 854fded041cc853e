// Package service is the command lifecycle manager: the only writer of
// command and response chunk records.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// InternalErrorMessage is stored on commands whose execution crashed.
const InternalErrorMessage = "Internal error during command execution"

var _ core.Recorder = (*Service)(nil)

// Service implements the command use cases.
type Service struct {
	vehicle   core.VehicleRepository
	user      core.UserRepository
	command   core.CommandRepository
	publisher core.EventPublisher
	archiver  core.Archiver
	executor  core.Executor

	dispatcher *Dispatcher
	logger     log.Logger

	now   func() time.Time
	newID func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithArchiver keeps a copy of every completed command in object storage.
func WithArchiver(a core.Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new instance of the core service.
// Dependency Injection happens here.
func New(repo core.Repository, publisher core.EventPublisher, executor core.Executor, opts ...Option) *Service {
	s := &Service{
		vehicle:   repo.Vehicle(),
		user:      repo.User(),
		command:   repo.Command(),
		publisher: publisher,
		executor:  executor,
		logger:    log.WithName("service"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.dispatcher = NewDispatcher(s.onPanic)
	return s
}

// Dispatcher returns the owner of running executions.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// SubmitCommand records a new command for an existing vehicle, starts it and
// returns without waiting for the vehicle.
func (s *Service) SubmitCommand(ctx context.Context, vehicleID, commandName string, params map[string]any, userID string) (*model.Command, error) {
	commandName = strings.TrimSpace(commandName)
	if commandName == "" {
		return nil, fmt.Errorf("command name is required: %w", util.ErrInvalidArgument)
	}
	if _, err := s.vehicle.Get(ctx, vehicleID); err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID, err)
	}
	if params == nil {
		params = map[string]any{}
	}

	cmd := &model.Command{
		ID:          s.newID(),
		VehicleID:   vehicleID,
		UserID:      userID,
		Name:        commandName,
		Params:      params,
		Status:      model.CommandStatusPending,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.command.Create(ctx, cmd); err != nil {
		return nil, err
	}

	// From here on the record exists and must reach a terminal state, so the
	// caller going away no longer aborts the writes.
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.WithValues("command_id", cmd.ID, "vehicle_id", vehicleID)
	if err := newLifecycle(cmd, s.command, s.now).Fire(ctx, EventStart); err != nil {
		logger.Error(err, "Failed to start command")
		if ferr := s.FailCommand(ctx, cmd.ID, InternalErrorMessage); ferr != nil {
			logger.Error(ferr, "Failed to mark unstarted command failed")
		}
		return nil, err
	}

	snapshot := *cmd
	err := s.dispatcher.Dispatch(ctx, cmd.ID, func(ctx context.Context) {
		s.executor.Execute(log.NewContext(ctx, logger), &snapshot, s)
	})
	if err != nil {
		logger.Error(err, "Failed to dispatch command")
		if ferr := s.FailCommand(ctx, cmd.ID, InternalErrorMessage); ferr != nil {
			logger.Error(ferr, "Failed to mark undispatched command failed")
		}
		return nil, err
	}

	logger.Info("Command submitted", "command_name", commandName, "user_id", userID)
	out := *cmd
	return &out, nil
}

// RecordResponse persists one chunk and publishes it.
func (s *Service) RecordResponse(ctx context.Context, commandID string, payload map[string]any, seq int, isFinal bool) (*model.ResponseChunk, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	chunk := &model.ResponseChunk{
		ID:         s.newID(),
		CommandID:  commandID,
		Payload:    payload,
		Sequence:   seq,
		IsFinal:    isFinal,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.command.CreateResponse(ctx, chunk); err != nil {
		return nil, err
	}

	s.publish(ctx, commandID, model.NewResponseEvent(chunk))
	return chunk, nil
}

// CompleteCommand moves the command to completed and publishes the status event.
func (s *Service) CompleteCommand(ctx context.Context, commandID string) error {
	cmd, err := s.command.Get(ctx, commandID)
	if err != nil {
		return err
	}
	if err := newLifecycle(cmd, s.command, s.now).Fire(ctx, EventComplete); err != nil {
		return err
	}

	s.publish(ctx, commandID, model.NewStatusEvent(commandID, *cmd.CompletedAt))
	s.archive(ctx, cmd)
	return nil
}

// FailCommand moves the command to failed and publishes the error event.
func (s *Service) FailCommand(ctx context.Context, commandID string, message string) error {
	cmd, err := s.command.Get(ctx, commandID)
	if err != nil {
		return err
	}
	if err := newLifecycle(cmd, s.command, s.now).Fire(ctx, EventFail, message); err != nil {
		return err
	}

	s.publish(ctx, commandID, model.NewErrorEvent(commandID, message, *cmd.CompletedAt))
	return nil
}

// GetCommand returns a command by id.
func (s *Service) GetCommand(ctx context.Context, commandID string) (*model.Command, error) {
	return s.command.Get(ctx, commandID)
}

// ListResponses returns the persisted chunks of an existing command in
// sequence order.
func (s *Service) ListResponses(ctx context.Context, commandID string) ([]*model.ResponseChunk, error) {
	if _, err := s.command.Get(ctx, commandID); err != nil {
		return nil, err
	}
	return s.command.ListResponses(ctx, commandID)
}

// ListCommands returns the command history matching filter.
func (s *Service) ListCommands(ctx context.Context, filter model.CommandFilter) ([]*model.Command, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", filter.Status, util.ErrInvalidArgument)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("limit and offset cannot be negative: %w", util.ErrInvalidArgument)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("date range ends before it starts: %w", util.ErrInvalidArgument)
	}
	return s.command.List(ctx, filter)
}

// publish is best effort: a subscriber that misses an event can still read
// the persisted chunks.
func (s *Service) publish(ctx context.Context, commandID string, event model.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, commandID, event); err != nil {
		s.logger.Error(err, "Failed to publish event", "command_id", commandID, "event", string(event.Type))
	}
}

func (s *Service) archive(ctx context.Context, cmd *model.Command) {
	if s.archiver == nil {
		return
	}
	chunks, err := s.command.ListResponses(ctx, cmd.ID)
	if err == nil {
		err = s.archiver.Archive(ctx, cmd, chunks)
	}
	if err != nil {
		s.logger.Error(err, "Failed to archive command", "command_id", cmd.ID)
	}
}

func (s *Service) onPanic(ctx context.Context, commandID string, _ any) {
	err := s.FailCommand(ctx, commandID, InternalErrorMessage)
	if err != nil && !errors.Is(err, util.ErrInvalidTransition) {
		s.logger.Error(err, "Failed to mark panicked command failed", "command_id", commandID)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, util.ErrNotFound)
}
