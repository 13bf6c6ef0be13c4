package catalog

import "errors"

// Catalog error types. The route layer maps these onto HTTP status codes.
var (
	ErrValidation        = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("operation forbidden")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrConflict          = errors.New("conflicting entry")
	ErrFatal             = errors.New("persistence failed after retries")
)
