package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/ptr"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	fsmutil "github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util/fsm"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const (
	// EventStart hands a pending command to the executor.
	EventStart = "start"
	// EventComplete records that every chunk has been persisted.
	EventComplete = "complete"
	// EventFail records an unrecoverable error.
	EventFail = "fail"
)

var lifecycleEvents = fsm.Events{
	{Name: EventStart, Src: []string{string(model.CommandStatusPending)}, Dst: string(model.CommandStatusInProgress)},
	{Name: EventComplete, Src: []string{string(model.CommandStatusInProgress)}, Dst: string(model.CommandStatusCompleted)},
	{Name: EventFail, Src: []string{string(model.CommandStatusPending), string(model.CommandStatusInProgress)}, Dst: string(model.CommandStatusFailed)},
}

// lifecycle moves one command through its status machine. The machine is
// built from the stored status, and every transition is persisted with a
// conditional update on the source status, so a concurrent writer that got
// there first makes the transition fail instead of overwriting it.
type lifecycle struct {
	*fsm.FSM

	cmd     *model.Command
	command commandWriter
	now     func() time.Time
}

type commandWriter interface {
	UpdateStatus(ctx context.Context, id string, from []model.CommandStatus, update model.StatusUpdate) error
}

func newLifecycle(cmd *model.Command, command commandWriter, now func() time.Time) *lifecycle {
	l := &lifecycle{cmd: cmd, command: command, now: now}

	callbacks := fsm.Callbacks{
		"before_" + EventFail: fsmutil.WrapGuard(l.guardFailureMessage),

		"enter_" + string(model.CommandStatusInProgress): fsmutil.WrapEvent(l.persist),
		"enter_" + string(model.CommandStatusCompleted):  fsmutil.WrapEvent(l.persist),
		"enter_" + string(model.CommandStatusFailed):     fsmutil.WrapEvent(l.persist),
	}

	l.FSM = fsm.NewFSM(string(cmd.Status), lifecycleEvents, callbacks)
	return l
}

// Fire runs event and maps machine errors to util sentinels.
func (l *lifecycle) Fire(ctx context.Context, event string, args ...any) error {
	err := l.Event(ctx, event, args...)
	if err == nil {
		return nil
	}

	var invalid fsm.InvalidEventError
	var canceled fsm.CanceledError
	switch {
	case errors.As(err, &invalid):
		return fmt.Errorf("command %s %s: %w", l.cmd.ID, invalid.Error(), util.ErrInvalidTransition)
	case errors.As(err, &canceled):
		if canceled.Err != nil {
			return canceled.Err
		}
		return fmt.Errorf("command %s %s: %w", l.cmd.ID, event, util.ErrInvalidTransition)
	}
	return err
}

func (l *lifecycle) guardFailureMessage(_ context.Context, e *fsm.Event) error {
	if failureMessage(e) == "" {
		return fmt.Errorf("failing command %s requires a message: %w", l.cmd.ID, util.ErrInvalidArgument)
	}
	return nil
}

// persist writes the transition that has just happened in the machine.
func (l *lifecycle) persist(ctx context.Context, e *fsm.Event) error {
	update := model.StatusUpdate{Status: model.CommandStatus(e.Dst)}
	if update.Status.IsTerminal() {
		update.CompletedAt = ptr.To(l.now().UTC())
	}
	if update.Status == model.CommandStatusFailed {
		update.ErrorMessage = failureMessage(e)
	}

	from := []model.CommandStatus{model.CommandStatus(e.Src)}
	if err := l.command.UpdateStatus(ctx, l.cmd.ID, from, update); err != nil {
		return err
	}

	l.cmd.Status = update.Status
	l.cmd.ErrorMessage = update.ErrorMessage
	l.cmd.CompletedAt = update.CompletedAt
	return nil
}

func failureMessage(e *fsm.Event) string {
	if len(e.Args) == 0 {
		return ""
	}
	msg, _ := e.Args[0].(string)
	return msg
}
