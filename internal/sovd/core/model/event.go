package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventResponse EventType = "response"
	EventStatus   EventType = "status"
	EventError    EventType = "error"
)

// Event is a message on a command's response channel. Only the fields of the
// variant named by Type are meaningful.
type Event struct {
	Type      EventType
	CommandID string

	// response
	ResponseID string
	Payload    map[string]any
	Sequence   int
	IsFinal    bool

	// status
	Status      CommandStatus
	CompletedAt time.Time

	// error
	ErrorMessage string
	FailedAt     time.Time
}

// NewResponseEvent builds the event announcing a persisted chunk.
func NewResponseEvent(c *ResponseChunk) Event {
	return Event{
		Type:       EventResponse,
		CommandID:  c.CommandID,
		ResponseID: c.ID,
		Payload:    c.Payload,
		Sequence:   c.Sequence,
		IsFinal:    c.IsFinal,
	}
}

// NewStatusEvent builds the event announcing a completed command.
func NewStatusEvent(commandID string, completedAt time.Time) Event {
	return Event{
		Type:        EventStatus,
		CommandID:   commandID,
		Status:      CommandStatusCompleted,
		CompletedAt: completedAt,
	}
}

// NewErrorEvent builds the event announcing a failed command.
func NewErrorEvent(commandID, message string, failedAt time.Time) Event {
	return Event{
		Type:         EventError,
		CommandID:    commandID,
		ErrorMessage: message,
		FailedAt:     failedAt,
	}
}

// TerminalEvent returns the event that corresponds to a terminal command.
func TerminalEvent(cmd *Command) (Event, bool) {
	var at time.Time
	if cmd.CompletedAt != nil {
		at = *cmd.CompletedAt
	}
	switch cmd.Status {
	case CommandStatusCompleted:
		return NewStatusEvent(cmd.ID, at), true
	case CommandStatusFailed:
		return NewErrorEvent(cmd.ID, cmd.ErrorMessage, at), true
	}
	return Event{}, false
}

// IsTerminal reports whether a subscriber should stop after this event.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventError:
		return true
	case EventStatus:
		return e.Status == CommandStatusCompleted
	}
	return false
}

type responseWire struct {
	Event           EventType      `json:"event"`
	CommandID       string         `json:"command_id"`
	ResponseID      string         `json:"response_id"`
	ResponsePayload map[string]any `json:"response_payload"`
	SequenceNumber  int            `json:"sequence_number"`
	IsFinal         bool           `json:"is_final"`
}

type statusWire struct {
	Event       EventType     `json:"event"`
	CommandID   string        `json:"command_id"`
	Status      CommandStatus `json:"status"`
	CompletedAt string        `json:"completed_at"`
}

type errorWire struct {
	Event        EventType `json:"event"`
	CommandID    string    `json:"command_id"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     string    `json:"failed_at"`
}

// MarshalJSON encodes the event in its variant's wire schema.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventResponse:
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return json.Marshal(responseWire{
			Event:           e.Type,
			CommandID:       e.CommandID,
			ResponseID:      e.ResponseID,
			ResponsePayload: payload,
			SequenceNumber:  e.Sequence,
			IsFinal:         e.IsFinal,
		})
	case EventStatus:
		return json.Marshal(statusWire{
			Event:       e.Type,
			CommandID:   e.CommandID,
			Status:      e.Status,
			CompletedAt: formatTime(e.CompletedAt),
		})
	case EventError:
		return json.Marshal(errorWire{
			Event:        e.Type,
			CommandID:    e.CommandID,
			ErrorMessage: e.ErrorMessage,
			FailedAt:     formatTime(e.FailedAt),
		})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}

// UnmarshalJSON decodes any of the wire schemas.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Event EventType `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Event {
	case EventResponse:
		var w responseWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*e = Event{
			Type:       w.Event,
			CommandID:  w.CommandID,
			ResponseID: w.ResponseID,
			Payload:    w.ResponsePayload,
			Sequence:   w.SequenceNumber,
			IsFinal:    w.IsFinal,
		}
	case EventStatus:
		var w statusWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		at, err := parseTime(w.CompletedAt)
		if err != nil {
			return err
		}
		*e = Event{Type: w.Event, CommandID: w.CommandID, Status: w.Status, CompletedAt: at}
	case EventError:
		var w errorWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		at, err := parseTime(w.FailedAt)
		if err != nil {
			return err
		}
		*e = Event{Type: w.Event, CommandID: w.CommandID, ErrorMessage: w.ErrorMessage, FailedAt: at}
	default:
		return fmt.Errorf("unknown event type %q", head.Event)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
