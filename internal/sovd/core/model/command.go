package model

import "time"

// CommandStatus is the lifecycle phase of a command.
type CommandStatus string

const (
	CommandStatusPending    CommandStatus = "pending"
	CommandStatusInProgress CommandStatus = "in_progress"
	CommandStatusCompleted  CommandStatus = "completed"
	CommandStatusFailed     CommandStatus = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s CommandStatus) IsTerminal() bool {
	return s == CommandStatusCompleted || s == CommandStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s CommandStatus) Valid() bool {
	switch s {
	case CommandStatusPending, CommandStatusInProgress, CommandStatusCompleted, CommandStatusFailed:
		return true
	}
	return false
}

// Command is one operation dispatched to one vehicle on behalf of one user.
type Command struct {
	ID           string         `json:"command_id"`
	VehicleID    string         `json:"vehicle_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"command_name"`
	Params       map[string]any `json:"command_params"`
	Status       CommandStatus  `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// StatusUpdate is the set of fields written together with a status change.
type StatusUpdate struct {
	Status       CommandStatus
	ErrorMessage string
	CompletedAt  *time.Time
}

// ResponseChunk is one ordered fragment of a command's streamed result.
type ResponseChunk struct {
	ID         string         `json:"response_id"`
	CommandID  string         `json:"command_id"`
	Payload    map[string]any `json:"response_payload"`
	Sequence   int            `json:"sequence_number"`
	IsFinal    bool           `json:"is_final"`
	ReceivedAt time.Time      `json:"received_at"`
}

// CommandFilter narrows a command history query. Zero values do not filter.
type CommandFilter struct {
	VehicleID string
	UserID    string
	Status    CommandStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
