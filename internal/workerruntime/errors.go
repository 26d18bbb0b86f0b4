package workerruntime

import "errors"

// ErrLeaseLost is returned when a heartbeat failure aborts an in-flight
// pipeline: the queue manager may already have reaped and re-queued the
// row, so the worker must stop touching it rather than attempt to
// complete or fail it (spec §4.5 "a failed heartbeat is fatal").
var ErrLeaseLost = errors.New("workerruntime: lease lost mid-pipeline")
