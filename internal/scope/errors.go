package scope

import "errors"

// ErrTemplateUnresolved wraps a CEL compile or evaluation failure: a
// referenced attribute was absent, or the expression itself is malformed.
var ErrTemplateUnresolved = errors.New("scope: template unresolved")

// ErrTypeMismatch is returned when an expression evaluates successfully
// but produces a value of the wrong Go type for the call site (e.g. a
// `when` clause that does not evaluate to bool).
var ErrTypeMismatch = errors.New("scope: type mismatch")
