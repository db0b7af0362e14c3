package domain

import "errors"

var (
	// The two subscription errors are sent verbatim as ack messages; clients
	// match on this exact text.
	ErrAlreadySubscribed  = errors.New("Already Subscribed")
	ErrNotInSubscriptions = errors.New("Not in subscriptions")
	ErrProjectNotFound    = errors.New("project not found")
	ErrInvalidProjectID   = errors.New("project_id must be a UUID")
	ErrUnknownAction      = errors.New("unknown action")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrInvalidFilename    = errors.New("filename must name a file")
)

// IsClientError reports whether err should be answered with a 400 ack
// rather than treated as a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadySubscribed) ||
		errors.Is(err, ErrNotInSubscriptions) ||
		errors.Is(err, ErrInvalidProjectID) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrInvalidMessage)
}
