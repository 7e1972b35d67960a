package ratelimit

import "time"

// Decision is the result of a single limit check.
// All algorithms in this package produce the same shape so that callers can
// treat them interchangeably.
type Decision struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Remaining is the allowance left in the current window (or bucket).
	Remaining int64

	// Reset is when the current window resets or the bucket refills enough
	// for one more request.
	Reset time.Time

	// RetryAfter suggests how long a denied caller should wait.
	// Zero when Allowed is true.
	RetryAfter time.Duration
}
