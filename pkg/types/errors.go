package types

import "errors"

var (
	// store errors
	ErrNotFound  = errors.New("object not found")
	ErrNotLeader = errors.New("node is not the raft leader")

	// input validation errors
	ErrInvalidResourceURL = errors.New("invalid resource url")
	ErrSchemeMismatch     = errors.New("resource url scheme does not match the store")
	ErrInvalidIdentity    = errors.New("invalid lock identity")
	ErrMissingIdentity    = errors.New("identity environment variable not set")
	ErrInvalidTimeouts    = errors.New("invalid mutex timeouts")

	// codec errors
	ErrUnknownCommand = errors.New("unknown command type")
	ErrMalformedEntry = errors.New("malformed command entry")
)
