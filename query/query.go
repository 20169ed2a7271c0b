// Package query defines the contract with the external query backend: an
// ordered list of field predicates executed against a named collection,
// returning opaque records. Backends are interchangeable; the core never
// interprets record contents.
package query

import (
	"context"
	"encoding/json"
)

// Op is one backend predicate operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
	OpHasSome    Op = "hasSome"
	OpHasAll     Op = "hasAll"
	OpIsEmpty    Op = "isEmpty"
	OpIsNotEmpty Op = "isNotEmpty"
)

// Predicate applies one operator to one field. Predicates in a request
// combine by AND.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Record is an opaque backend record. The core passes records through
// without inspecting them.
type Record = json.RawMessage

// Request describes one query: the collection to search, the predicates to
// apply, and optionally reference fields to expand into their target records.
type Request struct {
	Collection string
	Predicates []Predicate

	// Include names reference fields the backend should expand.
	Include []string

	// Limit caps the result size; zero means no cap.
	Limit int
}

// Backend executes queries. Implementations must preserve their collection's
// record order and honor context cancellation.
type Backend interface {
	Query(ctx context.Context, req Request) ([]Record, error)
}
