// Package filter defines the backend-agnostic filter expression model: a
// mapping from field names to operator conditions, with normalization,
// equivalence, and fail-fast schema validation. Expressions are plain
// serializable data; compiling them into backend predicates is the collection
// service's job.
package filter

import (
	"fmt"
	"reflect"
	"time"
)

// Operator is one predicate operator applied to a field. The spelling is the
// wire form, so a Condition marshals to JSON as `{"$gte": 10}`.
type Operator string

const (
	OpEq         Operator = "$eq"
	OpNe         Operator = "$ne"
	OpGt         Operator = "$gt"
	OpGte        Operator = "$gte"
	OpLt         Operator = "$lt"
	OpLte        Operator = "$lte"
	OpContains   Operator = "$contains"
	OpStartsWith Operator = "$startsWith"
	OpEndsWith   Operator = "$endsWith"
	OpHasSome    Operator = "$hasSome"
	OpHasAll     Operator = "$hasAll"
	OpIsEmpty    Operator = "$isEmpty"
	OpIsNotEmpty Operator = "$isNotEmpty"
)

// Operators lists the vocabulary in the fixed order predicates are emitted
// in, so a compiled predicate sequence is deterministic.
var Operators = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpContains, OpStartsWith, OpEndsWith,
	OpHasSome, OpHasAll, OpIsEmpty, OpIsNotEmpty,
}

func (op Operator) valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// Condition is the set of operators applied to one field, combined by AND.
type Condition map[Operator]any

// Expression maps field names to conditions, combined by AND. A nil
// Expression means "no filter"; so does an empty one, or one whose every
// condition is empty — Normalize folds them all into nil.
type Expression map[string]Condition

// Normalize returns the effective constraint set: conditions with no
// operators are dropped, and an expression left with no conditions becomes
// nil. The input is never mutated.
func (e Expression) Normalize() Expression {
	if len(e) == 0 {
		return nil
	}

	out := make(Expression, len(e))
	for field, cond := range e {
		if len(cond) == 0 {
			continue
		}

		c := make(Condition, len(cond))
		for op, v := range cond {
			c[op] = v
		}
		out[field] = c
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// IsEmpty reports whether the expression constrains nothing.
func (e Expression) IsEmpty() bool {
	return e.Normalize() == nil
}

// Equivalent reports whether two expressions produce the same effective
// constraint set.
func Equivalent(a, b Expression) bool {
	return reflect.DeepEqual(a.Normalize(), b.Normalize())
}

// Kind is the declared type of a filterable field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindList   Kind = "list"
)

// Schema declares the filterable fields. A nil Schema disables field checks
// (operator and operand checks still apply).
type Schema map[string]Kind

// ValidationError reports a malformed expression. Validation is fail-fast:
// one bad field condition rejects the whole expression, never a partial
// application.
type ValidationError struct {
	Field  string
	Op     Operator
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("filter: field %q: %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("filter: field %q: operator %s: %s", e.Field, e.Op, e.Reason)
}

// Validate checks the expression against the schema. Unknown fields, unknown
// operators, and operand type mismatches are all rejected.
func (e Expression) Validate(schema Schema) error {
	for field, cond := range e {
		kind, known := schema[field]
		if schema != nil && !known {
			return &ValidationError{Field: field, Reason: "unknown field"}
		}

		for op, operand := range cond {
			if !op.valid() {
				return &ValidationError{Field: field, Op: op, Reason: "unknown operator"}
			}

			if err := checkOperand(field, op, operand); err != nil {
				return err
			}

			if schema != nil {
				if err := checkFieldKind(field, op, kind); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func checkOperand(field string, op Operator, operand any) error {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		if !isOrdered(operand) {
			return &ValidationError{Field: field, Op: op, Reason: "operand must be a number, string, or time"}
		}
	case OpContains, OpStartsWith, OpEndsWith:
		if _, ok := operand.(string); !ok {
			return &ValidationError{Field: field, Op: op, Reason: "operand must be a string"}
		}
	case OpHasSome, OpHasAll:
		rv := reflect.ValueOf(operand)
		if operand == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return &ValidationError{Field: field, Op: op, Reason: "operand must be a list of values"}
		}
		if rv.Len() == 0 {
			return &ValidationError{Field: field, Op: op, Reason: "operand must not be empty"}
		}
	case OpIsEmpty, OpIsNotEmpty:
		if _, ok := operand.(bool); !ok {
			return &ValidationError{Field: field, Op: op, Reason: "operand must be a bool"}
		}
	}

	return nil
}

func checkFieldKind(field string, op Operator, kind Kind) error {
	ok := true

	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		ok = kind == KindNumber || kind == KindString || kind == KindTime
	case OpContains, OpStartsWith, OpEndsWith:
		ok = kind == KindString
	case OpHasSome, OpHasAll:
		ok = kind == KindList
	}

	if !ok {
		return &ValidationError{Field: field, Op: op, Reason: fmt.Sprintf("not applicable to a %s field", kind)}
	}

	return nil
}

func isOrdered(v any) bool {
	switch v.(type) {
	case string, time.Time:
		return true
	}

	if v == nil {
		return false
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}

	return false
}
