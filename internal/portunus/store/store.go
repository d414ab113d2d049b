// Package store defines the persistence contracts for the gate. Each
// collection gets its own typed store offering get, put and a predicate
// scan. Backends guarantee single-key atomicity; anything stronger
// (compare-and-set on requests, atomic OTP updates) is spelled out on the
// individual interface.
package store

import "errors"

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
	// ErrStale is returned when a compare-and-set observes a record that
	// has moved on since it was read.
	ErrStale = errors.New("store: stale record")
)
