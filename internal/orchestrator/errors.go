package orchestrator

import "errors"

// ErrCatalogNotFound is returned by a CatalogResolver when catalog_id does
// not resolve to a known playbook.
var ErrCatalogNotFound = errors.New("orchestrator: catalog not found")

// ErrStepNotFound is returned when a node_id or step name does not resolve
// within the execution's catalog entry.
var ErrStepNotFound = errors.New("orchestrator: step not found")
