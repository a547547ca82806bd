package model

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be > 0")
	ErrNoPendingGuests     = errors.New("no pending guests")
	ErrInvalidSchedule     = errors.New("scheduledAt required")
	ErrInvalidBody         = errors.New("invalid message body")
	ErrDuplicateGuest      = errors.New("guest with this phone already exists for event")
	ErrEventNotInWorkspace = errors.New("event not in workspace")
	ErrInvalidPhone        = errors.New("phone must contain digits")
)
