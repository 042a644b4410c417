package domain

import "errors"

// Closed set of remote error conditions the engines match on with
// errors.Is. Transport clients map wire-level failures onto these;
// everything else is treated as transient.
var (
	// ErrUserNotFound: the feed server does not know the user. Never
	// retried; the caller must re-run channel registration.
	ErrUserNotFound = errors.New("user not registered with feed server")

	// ErrZoneNotFound: the record store zone does not exist yet.
	ErrZoneNotFound = errors.New("record store zone not found")

	// ErrThrottled: the record store rejected a request for rate
	// limiting. Fatal for the current push phase.
	ErrThrottled = errors.New("record store throttled request")
)
