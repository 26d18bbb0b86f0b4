package queue

import "errors"

// ErrNoItem is returned by Lease when no queued row is available.
var ErrNoItem = errors.New("queue: no item available")

// ErrLeaseConflict is returned when Heartbeat/Complete/Fail is called by a
// worker that no longer holds the lease (expired and reaped, or leased by
// someone else).
var ErrLeaseConflict = errors.New("queue: lease conflict")
