package core

import "errors"

// Error classes. Adapters and servers classify with errors.Is.
var (
	// ErrValidation marks missing or malformed request fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown firmware version, record or device.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate firmware version on create.
	ErrConflict = errors.New("already exists")

	// ErrTransfer marks a transfer ended by a fetch or header failure.
	ErrTransfer = errors.New("firmware transfer failed")

	// ErrProtocol marks an envelope that is unknown or not valid in the current state.
	ErrProtocol = errors.New("protocol violation")

	// ErrOffline marks a device that is not registered at trigger time.
	ErrOffline = errors.New("device offline")
)

// Session state errors.
var (
	ErrTransferInProgress = errors.New("transfer already in progress")
	ErrTransferAborted    = errors.New("transfer aborted: connection closed")
	ErrNotUpdating        = errors.New("no transfer in progress")
	ErrSessionClosed      = errors.New("session closed")
)

// Error is a classified failure whose Message is safe to show to clients.
type Error struct {
	Kind    error
	Message string
}

// NewError returns an Error of class kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }
