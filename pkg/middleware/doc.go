// Package middleware provides the HTTP middleware chain for Ganymede.
//
// The chain, outermost first:
//
//	Recovery -> RequestID -> Logging -> Tracking -> application handler
//
// Recovery turns panics into 500 responses. RequestID assigns or propagates
// an X-Request-ID. Logging records one structured line per request. Tracking
// runs the admission decision and answers 429 for denied requests, with a
// Retry-After header when a reset time is known.
package middleware
