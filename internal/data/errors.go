package data

import "errors"

// Error taxonomy shared by both store variants and the service layer.
// Handlers map these to transport status codes; none of them mutate state
// when returned from a direct command.
var (
	// ErrForbidden marks a role-disallowed operation, such as a patient
	// creating a channel.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a reference to an unknown channel or user.
	ErrNotFound = errors.New("not found")

	// ErrChannelClosed is returned when a patient sends into a closed
	// channel. Staff sends reopen the channel instead.
	ErrChannelClosed = errors.New("channel closed")

	// ErrValidation marks an empty body or otherwise malformed request.
	ErrValidation = errors.New("invalid request")

	// ErrDuplicate marks a uniqueness violation (e.g. registering an
	// already-known email).
	ErrDuplicate = errors.New("already exists")
)
