package rate

import "errors"

var (
	// ErrRateLimited is returned by Allow when any key is over its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps counter store failures.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
