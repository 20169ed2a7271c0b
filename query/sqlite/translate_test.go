package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomkit/loom/query"
)

func TestTranslate(t *testing.T) {
	t.Run("comparisons", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "price", Op: query.OpGte, Value: 10})
		require.NoError(t, err)
		assert.Equal(t, "(json_extract(data, '$.price') >= ?)", cond.clause)
		assert.Equal(t, []any{10}, cond.params)
	})

	t.Run("not-equals is null-safe", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "name", Op: query.OpNe, Value: "widget"})
		require.NoError(t, err)
		assert.Equal(t,
			"(json_extract(data, '$.name') IS NULL OR json_extract(data, '$.name') <> ?)",
			cond.clause)
	})

	t.Run("string matching", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "name", Op: query.OpStartsWith, Value: "wid"})
		require.NoError(t, err)
		assert.Equal(t, `(json_extract(data, '$.name') LIKE ? || '%' ESCAPE '\')`, cond.clause)
		assert.Equal(t, []any{"wid"}, cond.params)
	})

	t.Run("substring operands match literally", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "name", Op: query.OpContains, Value: `50% o_f \sale`})
		require.NoError(t, err)
		assert.Equal(t, `(json_extract(data, '$.name') LIKE '%' || ? || '%' ESCAPE '\')`, cond.clause)
		assert.Equal(t, []any{`50\% o\_f \\sale`}, cond.params)
	})

	t.Run("hasSome", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "tags", Op: query.OpHasSome, Value: []any{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t,
			"(EXISTS (SELECT 1 FROM json_each(data, '$.tags') WHERE value IN (?, ?)))",
			cond.clause)
		assert.Equal(t, []any{"a", "b"}, cond.params)
	})

	t.Run("hasAll counts distinct matches", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "tags", Op: query.OpHasAll, Value: []any{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t,
			"((SELECT COUNT(DISTINCT value) FROM json_each(data, '$.tags') WHERE value IN (?, ?)) = ?)",
			cond.clause)
		assert.Equal(t, []any{"a", "b", 2}, cond.params)
	})

	t.Run("hasAll ignores duplicate operand members", func(t *testing.T) {
		cond, err := translate(query.Predicate{Field: "tags", Op: query.OpHasAll, Value: []any{"a", "a", "b"}})
		require.NoError(t, err)
		assert.Equal(t,
			"((SELECT COUNT(DISTINCT value) FROM json_each(data, '$.tags') WHERE value IN (?, ?)) = ?)",
			cond.clause)
		assert.Equal(t, []any{"a", "b", 2}, cond.params)
	})

	t.Run("time operands normalize to RFC3339", func(t *testing.T) {
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		cond, err := translate(query.Predicate{Field: "created", Op: query.OpLt, Value: ts})
		require.NoError(t, err)
		assert.Equal(t, []any{"2026-03-01T12:00:00Z"}, cond.params)
	})

	t.Run("rejects hostile field names", func(t *testing.T) {
		_, err := translate(query.Predicate{Field: "x') OR 1=1 --", Op: query.OpEq, Value: 1})
		assert.Error(t, err)
	})

	t.Run("rejects unknown operators", func(t *testing.T) {
		_, err := translate(query.Predicate{Field: "price", Op: query.Op("between"), Value: 1})
		assert.Error(t, err)
	})
}
