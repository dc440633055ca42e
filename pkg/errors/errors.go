package civichat_errors

import "errors"

// Error kinds returned by services. Handlers map these to transport
// codes; realtime paths report them only to the originating connection.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrNotParticipant   = errors.New("not a conversation participant")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidCallState = errors.New("invalid call state transition")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("service unavailable")
)
