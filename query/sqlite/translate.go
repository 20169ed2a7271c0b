package sqlite

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/loomkit/loom/query"
)

// condition is a SQL WHERE fragment with its positional parameters.
type condition struct {
	clause string
	params []any
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// translate turns one predicate into a WHERE fragment over the record's JSON
// document. Field names become JSON paths, so they are restricted to
// identifier segments.
func translate(p query.Predicate) (condition, error) {
	if !fieldPattern.MatchString(p.Field) {
		return condition{}, fmt.Errorf("sqlite: invalid field name %q", p.Field)
	}

	path := "$." + p.Field
	field := fmt.Sprintf("json_extract(data, '%s')", path)

	switch p.Op {
	case query.OpEq:
		return condition{clause: fmt.Sprintf("(%s = ?)", field), params: []any{param(p.Value)}}, nil
	case query.OpNe:
		return condition{clause: fmt.Sprintf("(%s IS NULL OR %s <> ?)", field, field), params: []any{param(p.Value)}}, nil
	case query.OpGt:
		return condition{clause: fmt.Sprintf("(%s > ?)", field), params: []any{param(p.Value)}}, nil
	case query.OpGte:
		return condition{clause: fmt.Sprintf("(%s >= ?)", field), params: []any{param(p.Value)}}, nil
	case query.OpLt:
		return condition{clause: fmt.Sprintf("(%s < ?)", field), params: []any{param(p.Value)}}, nil
	case query.OpLte:
		return condition{clause: fmt.Sprintf("(%s <= ?)", field), params: []any{param(p.Value)}}, nil
	case query.OpContains:
		return condition{clause: fmt.Sprintf(`(%s LIKE '%%' || ? || '%%' ESCAPE '\')`, field), params: []any{likeParam(p.Value)}}, nil
	case query.OpStartsWith:
		return condition{clause: fmt.Sprintf(`(%s LIKE ? || '%%' ESCAPE '\')`, field), params: []any{likeParam(p.Value)}}, nil
	case query.OpEndsWith:
		return condition{clause: fmt.Sprintf(`(%s LIKE '%%' || ? ESCAPE '\')`, field), params: []any{likeParam(p.Value)}}, nil
	case query.OpHasSome:
		return translateSet(path, p.Value, false)
	case query.OpHasAll:
		return translateSet(path, p.Value, true)
	case query.OpIsEmpty:
		return condition{clause: emptyClause(path, field)}, nil
	case query.OpIsNotEmpty:
		return condition{clause: "NOT " + emptyClause(path, field)}, nil
	default:
		return condition{}, fmt.Errorf("sqlite: unsupported operator %q", p.Op)
	}
}

// translateSet matches the record's array (or scalar) field against the
// operand list via json_each. With all set, every operand member must be
// present.
func translateSet(path string, operand any, all bool) (condition, error) {
	rv := reflect.ValueOf(operand)
	if operand == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return condition{}, fmt.Errorf("sqlite: set operator requires a list operand, got %T", operand)
	}
	if rv.Len() == 0 {
		return condition{}, fmt.Errorf("sqlite: set operator requires a non-empty list")
	}

	// duplicate operand members must not inflate the match count required
	// by the COUNT(DISTINCT value) check
	params := make([]any, 0, rv.Len())
	seen := make(map[any]struct{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v := param(rv.Index(i).Interface())
		if t := reflect.TypeOf(v); t != nil && t.Comparable() {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		params = append(params, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")

	if all {
		clause := fmt.Sprintf(
			"((SELECT COUNT(DISTINCT value) FROM json_each(data, '%s') WHERE value IN (%s)) = ?)",
			path, placeholders,
		)
		return condition{clause: clause, params: append(params, len(params))}, nil
	}

	clause := fmt.Sprintf(
		"(EXISTS (SELECT 1 FROM json_each(data, '%s') WHERE value IN (%s)))",
		path, placeholders,
	)
	return condition{clause: clause, params: params}, nil
}

func emptyClause(path, field string) string {
	return fmt.Sprintf(
		"(%s IS NULL OR %s = '' OR (json_type(data, '%s') = 'array' AND json_array_length(data, '%s') = 0))",
		field, field, path, path,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeParam escapes LIKE metacharacters so substring operators match
// literally, the way the in-memory backend does.
func likeParam(v any) any {
	if s, ok := v.(string); ok {
		return likeEscaper.Replace(s)
	}

	return param(v)
}

// param converts an operand into a driver-friendly value.
func param(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}

	return v
}
