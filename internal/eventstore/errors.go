package eventstore

import "errors"

// ErrCatalogUnresolved is returned by Emit when an event carries no
// catalog_id and the execution has no prior event to take one from.
var ErrCatalogUnresolved = errors.New("eventstore: catalog_id unresolved")

// ErrInvalidEventType is returned when an event's type is not one of the
// recognized model.EventType values.
var ErrInvalidEventType = errors.New("eventstore: invalid event type")

// ErrInvalidStatus is returned when an event's status is not a recognized
// model.Status value.
var ErrInvalidStatus = errors.New("eventstore: invalid status")
