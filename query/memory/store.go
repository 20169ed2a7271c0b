// Package memory is an in-process query backend over JSON records. It
// implements the full predicate vocabulary and reference expansion, and is
// the backend of choice for tests and for baselines already present on the
// client.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/loomkit/loom/query"
)

type Store struct {
	mu sync.RWMutex

	collections map[string][]query.Record

	// collection → reference field → target collection
	refs map[string]map[string]string
}

func New() *Store {
	return &Store{
		collections: make(map[string][]query.Record),
		refs:        make(map[string]map[string]string),
	}
}

// SetCollection replaces the records of a collection, keeping their order.
func (s *Store) SetCollection(name string, records ...query.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[name] = append([]query.Record(nil), records...)
}

// SetReference declares field in collection to hold the id of a record in
// target, making it expandable through Request.Include.
func (s *Store) SetReference(collection, field, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs[collection] == nil {
		s.refs[collection] = make(map[string]string)
	}
	s.refs[collection][field] = target
}

func (s *Store) Query(ctx context.Context, req query.Request) ([]query.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := s.collections[req.Collection]
	refs := s.refs[req.Collection]
	s.mu.RUnlock()

	var out []query.Record

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := matches(rec, req.Predicates)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if len(req.Include) > 0 {
			expanded, err := s.expand(rec, refs, req.Include)
			if err != nil {
				return nil, err
			}
			rec = expanded
		}

		out = append(out, rec)

		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}

	return out, nil
}

func matches(rec query.Record, predicates []query.Predicate) (bool, error) {
	for _, p := range predicates {
		ok, err := match(rec, p)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func match(rec query.Record, p query.Predicate) (bool, error) {
	v := gjson.GetBytes(rec, p.Field)

	switch p.Op {
	case query.OpEq:
		return equal(v, p.Value), nil
	case query.OpNe:
		return !equal(v, p.Value), nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		return ordered(v, p.Op, p.Value)
	case query.OpContains:
		s, ok := p.Value.(string)
		return ok && strings.Contains(v.String(), s), nil
	case query.OpStartsWith:
		s, ok := p.Value.(string)
		return ok && strings.HasPrefix(v.String(), s), nil
	case query.OpEndsWith:
		s, ok := p.Value.(string)
		return ok && strings.HasSuffix(v.String(), s), nil
	case query.OpHasSome:
		return intersects(v, p.Value, false)
	case query.OpHasAll:
		return intersects(v, p.Value, true)
	case query.OpIsEmpty:
		return empty(v), nil
	case query.OpIsNotEmpty:
		return !empty(v), nil
	default:
		return false, fmt.Errorf("memory: unsupported operator %q", p.Op)
	}
}

func equal(v gjson.Result, operand any) bool {
	switch v.Type {
	case gjson.Null:
		return operand == nil
	case gjson.True, gjson.False:
		b, ok := operand.(bool)
		return ok && v.Bool() == b
	case gjson.Number:
		f, ok := toFloat(operand)
		return ok && v.Num == f
	case gjson.String:
		s, ok := operand.(string)
		return ok && v.Str == s
	default:
		return false
	}
}

func ordered(v gjson.Result, op query.Op, operand any) (bool, error) {
	var cmp int

	switch {
	case v.Type == gjson.Number:
		f, ok := toFloat(operand)
		if !ok {
			return false, nil
		}
		switch {
		case v.Num < f:
			cmp = -1
		case v.Num > f:
			cmp = 1
		}
	case v.Type == gjson.String:
		switch operand := operand.(type) {
		case string:
			cmp = strings.Compare(v.Str, operand)
		case time.Time:
			t, err := time.Parse(time.RFC3339, v.Str)
			if err != nil {
				return false, nil
			}
			switch {
			case t.Before(operand):
				cmp = -1
			case t.After(operand):
				cmp = 1
			}
		default:
			return false, nil
		}
	default:
		// missing or non-scalar values never satisfy an ordering predicate
		return false, nil
	}

	switch op {
	case query.OpGt:
		return cmp > 0, nil
	case query.OpGte:
		return cmp >= 0, nil
	case query.OpLt:
		return cmp < 0, nil
	case query.OpLte:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("memory: %q is not an ordering operator", op)
	}
}

// intersects checks the record's value (an array, or a scalar treated as a
// one-element set) against the operand list. With all set, every operand
// member must be present; otherwise one is enough.
func intersects(v gjson.Result, operand any, all bool) (bool, error) {
	rv := reflect.ValueOf(operand)
	if operand == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false, fmt.Errorf("memory: set operator requires a list operand, got %T", operand)
	}

	var members []gjson.Result
	if v.IsArray() {
		members = v.Array()
	} else if v.Exists() {
		members = []gjson.Result{v}
	}

	for i := 0; i < rv.Len(); i++ {
		want := rv.Index(i).Interface()

		found := false
		for _, m := range members {
			if equal(m, want) {
				found = true
				break
			}
		}

		if found && !all {
			return true, nil
		}
		if !found && all {
			return false, nil
		}
	}

	return all, nil
}

func empty(v gjson.Result) bool {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return true
	case v.Type == gjson.String:
		return v.Str == ""
	case v.IsArray():
		return len(v.Array()) == 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// expand replaces each included reference field with the record it points to.
func (s *Store) expand(rec query.Record, refs map[string]string, include []string) (query.Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(rec, &doc); err != nil {
		return nil, fmt.Errorf("memory: decode record: %w", err)
	}

	for _, field := range include {
		target, ok := refs[field]
		if !ok {
			return nil, fmt.Errorf("memory: field %q is not a reference", field)
		}

		id, ok := doc[field].(string)
		if !ok {
			continue
		}

		referenced, err := s.lookup(target, id)
		if err != nil {
			return nil, err
		}
		if referenced == nil {
			continue
		}

		var value any
		if err := json.Unmarshal(referenced, &value); err != nil {
			return nil, fmt.Errorf("memory: decode referenced record: %w", err)
		}
		doc[field] = value
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("memory: encode record: %w", err)
	}

	return out, nil
}

func (s *Store) lookup(collection, id string) (query.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.collections[collection] {
		if gjson.GetBytes(rec, "id").String() == id {
			return rec, nil
		}
	}

	return nil, nil
}
