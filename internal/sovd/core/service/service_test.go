package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/bus"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/store"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

type executorFunc func(ctx context.Context, cmd *model.Command, rec core.Recorder)

func (f executorFunc) Execute(ctx context.Context, cmd *model.Command, rec core.Recorder) {
	f(ctx, cmd, rec)
}

// streamChunks behaves like a healthy vehicle returning n chunks.
func streamChunks(n int) executorFunc {
	return func(ctx context.Context, cmd *model.Command, rec core.Recorder) {
		for i := 0; i < n; i++ {
			if _, err := rec.RecordResponse(ctx, cmd.ID, map[string]any{"i": i}, i, i == n-1); err != nil {
				_ = rec.FailCommand(ctx, cmd.ID, InternalErrorMessage)
				return
			}
		}
		_ = rec.CompleteCommand(ctx, cmd.ID)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, model.Event) error {
	return errors.New("broker down")
}

type recordingArchiver struct {
	mu     sync.Mutex
	cmds   []*model.Command
	chunks [][]*model.ResponseChunk
}

func (a *recordingArchiver) Archive(_ context.Context, cmd *model.Command, chunks []*model.ResponseChunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmds = append(a.cmds, cmd)
	a.chunks = append(a.chunks, chunks)
	return nil
}

type fixture struct {
	repo core.Repository
	bus  *bus.MemoryBus
	svc  *Service
}

func newFixture(t *testing.T, exec core.Executor, publisher core.EventPublisher, opts ...Option) *fixture {
	t.Helper()

	dbOpts := options.NewDBOptions()
	dbOpts.DSN = ":memory:"
	db, err := store.Open(dbOpts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	repo := store.NewRepository(db)

	err = repo.Vehicle().Create(context.Background(), &model.Vehicle{
		ID:               "veh-1",
		VIN:              "WVWZZZ1JZXW000001",
		Name:             "test car",
		ConnectionStatus: model.VehicleConnected,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}

	f := &fixture{repo: repo, bus: bus.NewMemoryBus(64)}
	if publisher == nil {
		publisher = f.bus
	}
	f.svc = New(repo, publisher, exec, opts...)
	t.Cleanup(func() { _ = f.bus.Close() })
	return f
}

// drain waits for all dispatched executions.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.svc.Dispatcher().Shutdown(ctx); err != nil {
		t.Fatalf("executions did not finish: %v", err)
	}
}

func TestSubmitCommandValidation(t *testing.T) {
	f := newFixture(t, streamChunks(1), nil)
	ctx := context.Background()

	if _, err := f.svc.SubmitCommand(ctx, "veh-404", "ReadDTC", nil, "user-1"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("unknown vehicle error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.SubmitCommand(ctx, "veh-1", "  ", nil, "user-1"); !errors.Is(err, util.ErrInvalidArgument) {
		t.Errorf("empty name error = %v, want ErrInvalidArgument", err)
	}

	cmds, err := f.svc.ListCommands(ctx, model.CommandFilter{})
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	if len(cmds) != 0 {
		t.Errorf("rejected submissions wrote %d commands", len(cmds))
	}
}

func TestSubmitCommandStreamsToCompletion(t *testing.T) {
	started := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, cmd *model.Command, rec core.Recorder) {
		<-started
		streamChunks(3)(ctx, cmd, rec)
	})
	f := newFixture(t, exec, nil)
	ctx := context.Background()

	cmd, err := f.svc.SubmitCommand(ctx, "veh-1", "ReadDTC", map[string]any{"ecu": "0x10"}, "user-1")
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	if cmd.Status != model.CommandStatusInProgress {
		t.Fatalf("submitted status = %s, want in_progress", cmd.Status)
	}

	sub, err := f.bus.Subscribe(ctx, cmd.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	close(started)
	f.drain(t)

	var got []model.Event
	for len(got) < 4 {
		select {
		case e := <-sub.Events():
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatalf("received %d events, want 4", len(got))
		}
	}
	for i := 0; i < 3; i++ {
		if got[i].Type != model.EventResponse || got[i].Sequence != i {
			t.Errorf("event %d = %+v", i, got[i])
		}
	}
	if !got[3].IsTerminal() || got[3].Type != model.EventStatus {
		t.Errorf("last event = %+v, want completed status", got[3])
	}

	stored, err := f.svc.GetCommand(ctx, cmd.ID)
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if stored.Status != model.CommandStatusCompleted || stored.CompletedAt == nil || stored.ErrorMessage != "" {
		t.Errorf("stored command = %+v", stored)
	}

	chunks, err := f.svc.ListResponses(ctx, cmd.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(chunks) != 3 || !chunks[2].IsFinal || chunks[0].Sequence != 0 {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestExecutionPanicFailsCommand(t *testing.T) {
	exec := executorFunc(func(context.Context, *model.Command, core.Recorder) {
		panic("vehicle driver bug")
	})
	f := newFixture(t, exec, nil)
	ctx := context.Background()

	cmd, err := f.svc.SubmitCommand(ctx, "veh-1", "ReadDTC", nil, "user-1")
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	f.drain(t)

	stored, _ := f.svc.GetCommand(ctx, cmd.ID)
	if stored.Status != model.CommandStatusFailed || stored.ErrorMessage != InternalErrorMessage {
		t.Errorf("stored command = %+v", stored)
	}
}

func TestTransitionsNeverRegress(t *testing.T) {
	f := newFixture(t, streamChunks(1), nil)
	ctx := context.Background()

	pending := &model.Command{ID: "c-pending", VehicleID: "veh-1", Name: "x", Status: model.CommandStatusPending, SubmittedAt: time.Now().UTC()}
	if err := f.repo.Command().Create(ctx, pending); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := f.svc.CompleteCommand(ctx, pending.ID); !errors.Is(err, util.ErrInvalidTransition) {
		t.Errorf("complete from pending error = %v, want ErrInvalidTransition", err)
	}
	if err := f.svc.FailCommand(ctx, pending.ID, ""); !errors.Is(err, util.ErrInvalidArgument) {
		t.Errorf("fail without message error = %v, want ErrInvalidArgument", err)
	}
	if err := f.svc.FailCommand(ctx, pending.ID, "Vehicle unreachable"); err != nil {
		t.Fatalf("fail from pending: %v", err)
	}
	if err := f.svc.FailCommand(ctx, pending.ID, "again"); !errors.Is(err, util.ErrInvalidTransition) {
		t.Errorf("fail from failed error = %v, want ErrInvalidTransition", err)
	}
	if err := f.svc.CompleteCommand(ctx, pending.ID); !errors.Is(err, util.ErrInvalidTransition) {
		t.Errorf("complete from failed error = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.RecordResponse(ctx, pending.ID, nil, 0, true); err == nil {
		t.Error("chunk accepted for a terminal command")
	}
	if err := f.svc.CompleteCommand(ctx, "missing"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("complete missing error = %v, want ErrNotFound", err)
	}

	stored, _ := f.svc.GetCommand(ctx, pending.ID)
	if stored.Status != model.CommandStatusFailed || stored.ErrorMessage != "Vehicle unreachable" {
		t.Errorf("stored command = %+v", stored)
	}
}

func TestPublishFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, streamChunks(2), failingPublisher{})
	ctx := context.Background()

	cmd, err := f.svc.SubmitCommand(ctx, "veh-1", "ReadDTC", nil, "user-1")
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	f.drain(t)

	stored, _ := f.svc.GetCommand(ctx, cmd.ID)
	if stored.Status != model.CommandStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestCompletedCommandIsArchived(t *testing.T) {
	archiver := &recordingArchiver{}
	f := newFixture(t, streamChunks(2), nil, WithArchiver(archiver))

	cmd, err := f.svc.SubmitCommand(context.Background(), "veh-1", "ReadDTC", nil, "user-1")
	if err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	f.drain(t)

	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if len(archiver.cmds) != 1 || archiver.cmds[0].ID != cmd.ID || len(archiver.chunks[0]) != 2 {
		t.Fatalf("archived %d commands", len(archiver.cmds))
	}
	if archiver.cmds[0].Status != model.CommandStatusCompleted {
		t.Errorf("archived status = %s", archiver.cmds[0].Status)
	}
}

func TestListCommandsRejectsBadFilter(t *testing.T) {
	f := newFixture(t, streamChunks(1), nil)
	from := time.Now()
	to := from.Add(-time.Hour)

	tests := []struct {
		name   string
		filter model.CommandFilter
	}{
		{"unknown status", model.CommandFilter{Status: "paused"}},
		{"negative limit", model.CommandFilter{Limit: -1}},
		{"inverted range", model.CommandFilter{From: &from, To: &to}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.ListCommands(context.Background(), tt.filter); !errors.Is(err, util.ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestListResponsesOfUnknownCommand(t *testing.T) {
	f := newFixture(t, streamChunks(1), nil)
	if _, err := f.svc.ListResponses(context.Background(), "missing"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRegisterVehicleAndEnsureUser(t *testing.T) {
	f := newFixture(t, streamChunks(1), nil)
	ctx := context.Background()

	if _, err := f.svc.RegisterVehicle(ctx, &model.Vehicle{Name: "no vin"}); !errors.Is(err, util.ErrInvalidArgument) {
		t.Errorf("missing vin error = %v", err)
	}
	v, err := f.svc.RegisterVehicle(ctx, &model.Vehicle{VIN: "VIN2", Name: "second"})
	if err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	if v.ID == "" || v.ConnectionStatus != model.VehicleDisconnected {
		t.Errorf("registered vehicle = %+v", v)
	}
	vehicles, _ := f.svc.ListVehicles(ctx)
	if len(vehicles) != 2 {
		t.Errorf("ListVehicles returned %d, want 2", len(vehicles))
	}

	admin := &model.User{ID: "admin", Username: "admin", Role: "admin", IsActive: true}
	for i := 0; i < 2; i++ {
		if err := f.svc.EnsureUser(ctx, admin); err != nil {
			t.Fatalf("EnsureUser #%d: %v", i, err)
		}
	}
}

// flakyCommands fails the first write to in_progress and can cancel the
// submitting context right after the record is created.
type flakyCommands struct {
	core.CommandRepository
	startErr error
	cancel   context.CancelFunc
}

func (c *flakyCommands) Create(ctx context.Context, cmd *model.Command) error {
	err := c.CommandRepository.Create(ctx, cmd)
	if c.cancel != nil {
		c.cancel()
	}
	return err
}

func (c *flakyCommands) UpdateStatus(ctx context.Context, id string, from []model.CommandStatus, update model.StatusUpdate) error {
	if update.Status == model.CommandStatusInProgress && c.startErr != nil {
		err := c.startErr
		c.startErr = nil
		return err
	}
	return c.CommandRepository.UpdateStatus(ctx, id, from, update)
}

type flakyRepo struct {
	core.Repository
	commands *flakyCommands
}

func (r flakyRepo) Command() core.CommandRepository { return r.commands }

func TestSubmitCommandAlwaysReachesTerminalState(t *testing.T) {
	tests := []struct {
		name       string
		startErr   error
		cancelCtx  bool
		wantErr    bool
		wantStatus model.CommandStatus
	}{
		{"start write fails", errors.New("database is locked"), false, true, model.CommandStatusFailed},
		{"caller leaves after create", nil, true, false, model.CommandStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, streamChunks(2), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			commands := &flakyCommands{CommandRepository: f.repo.Command(), startErr: tt.startErr}
			if tt.cancelCtx {
				commands.cancel = cancel
			}
			svc := New(flakyRepo{Repository: f.repo, commands: commands}, f.bus, streamChunks(2))

			_, err := svc.SubmitCommand(ctx, "veh-1", "ReadDTC", nil, "user-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("SubmitCommand error = %v, wantErr %v", err, tt.wantErr)
			}

			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			if err := svc.Dispatcher().Shutdown(dctx); err != nil {
				t.Fatalf("executions did not finish: %v", err)
			}

			stored, err := f.repo.Command().List(context.Background(), model.CommandFilter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(stored) != 1 {
				t.Fatalf("stored %d commands, want 1", len(stored))
			}
			got := stored[0]
			if got.Status != tt.wantStatus || got.CompletedAt == nil {
				t.Errorf("stored command = %+v, want status %s with completed_at", got, tt.wantStatus)
			}
			if tt.wantStatus == model.CommandStatusFailed && got.ErrorMessage != InternalErrorMessage {
				t.Errorf("error message = %q, want %q", got.ErrorMessage, InternalErrorMessage)
			}
		})
	}
}

func TestExecutionReceivesCommandLogger(t *testing.T) {
	loggers := make(chan log.Logger, 1)
	exec := executorFunc(func(ctx context.Context, cmd *model.Command, rec core.Recorder) {
		loggers <- log.FromContext(ctx)
		streamChunks(1)(ctx, cmd, rec)
	})
	f := newFixture(t, exec, nil)

	if _, err := f.svc.SubmitCommand(context.Background(), "veh-1", "ReadDTC", nil, "user-1"); err != nil {
		t.Fatalf("SubmitCommand: %v", err)
	}
	f.drain(t)

	if got := <-loggers; got == log.Std() {
		t.Error("execution context carries no command logger")
	}
}
