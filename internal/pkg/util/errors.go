package util

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a command cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyRunning is returned when a second execution is requested for an active command.
	ErrAlreadyRunning = errors.New("command already running")

	// ErrUnauthorized is returned when a caller cannot be authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when an authenticated caller lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument is returned when caller input is rejected before any write.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSequence is returned when a response chunk breaks the contiguous sequence of its command.
	ErrSequence = errors.New("response sequence violation")
)
