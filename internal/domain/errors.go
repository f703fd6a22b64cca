package domain

import "errors"

// Domain errors
var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrSelfConnection       = errors.New("cannot connect with yourself")
	ErrNotRegistered        = errors.New("both users must be registered for this event")
	ErrConnectionExists     = errors.New("connection already exists")
	ErrInvalidToken         = errors.New("invalid connection token")
	ErrTokenExpired         = errors.New("connection token has expired")
	ErrForeignConnection    = errors.New("this connection is not intended for you")
	ErrConnectionNotFound   = errors.New("connection not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrCommunityNotFound    = errors.New("community not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// IsUnauthenticated checks if an error means the caller has no valid identity
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsPermissionDenied checks if an error means the caller is authenticated but
// not authorized for the record in question
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrForeignConnection)
}

// IsInvalidArgument checks if an error is a validation or precondition failure
// expressible purely from the arguments
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrSelfConnection) ||
		errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsConflict checks if an error means the transition is blocked by existing
// persisted state
func IsConflict(err error) bool {
	return errors.Is(err, ErrConnectionExists)
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrConnectionNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrCommunityNotFound) ||
		errors.Is(err, ErrEventNotFound)
}
