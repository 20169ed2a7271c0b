package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("nil, empty, and all-empty are equivalent", func(t *testing.T) {
		var nilExpr Expression
		empty := Expression{}
		hollow := Expression{"price": Condition{}, "name": Condition{}}

		assert.Nil(t, nilExpr.Normalize())
		assert.Nil(t, empty.Normalize())
		assert.Nil(t, hollow.Normalize())

		assert.True(t, Equivalent(nilExpr, empty))
		assert.True(t, Equivalent(empty, hollow))

		assert.True(t, nilExpr.IsEmpty())
		assert.True(t, empty.IsEmpty())
		assert.True(t, hollow.IsEmpty())
	})

	t.Run("keeps effective conditions", func(t *testing.T) {
		e := Expression{
			"price": Condition{OpGte: 10, OpLte: 50},
			"name":  Condition{},
		}

		n := e.Normalize()
		assert.Equal(t, Expression{"price": Condition{OpGte: 10, OpLte: 50}}, n)
		assert.False(t, e.IsEmpty())

		// input untouched
		assert.Contains(t, e, "name")
	})

	t.Run("equivalence ignores hollow conditions", func(t *testing.T) {
		a := Expression{"price": Condition{OpGt: 5}}
		b := Expression{"price": Condition{OpGt: 5}, "tags": Condition{}}
		c := Expression{"price": Condition{OpGt: 6}}

		assert.True(t, Equivalent(a, b))
		assert.False(t, Equivalent(a, c))
	})
}

func TestValidate(t *testing.T) {
	schema := Schema{
		"price": KindNumber,
		"name":  KindString,
		"tags":  KindList,
		"sold":  KindBool,
	}

	t.Run("accepts a well-formed expression", func(t *testing.T) {
		e := Expression{
			"price": Condition{OpGte: 10, OpLte: 50},
			"name":  Condition{OpStartsWith: "wid"},
			"tags":  Condition{OpHasSome: []any{"a", "b"}},
			"sold":  Condition{OpEq: false},
		}

		assert.NoError(t, e.Validate(schema))
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		e := Expression{"color": Condition{OpEq: "red"}}

		err := e.Validate(schema)
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "color", verr.Field)
	})

	t.Run("rejects unknown operators", func(t *testing.T) {
		e := Expression{"price": Condition{Operator("$near"): 10}}

		var verr *ValidationError
		require.ErrorAs(t, e.Validate(schema), &verr)
		assert.Equal(t, Operator("$near"), verr.Op)
	})

	t.Run("rejects operand type mismatches", func(t *testing.T) {
		cases := map[string]Expression{
			"comparison on bool operand":  {"price": Condition{OpGte: true}},
			"contains with number":        {"name": Condition{OpContains: 7}},
			"hasSome with scalar":         {"tags": Condition{OpHasSome: "a"}},
			"hasSome with empty list":     {"tags": Condition{OpHasAll: []any{}}},
			"isEmpty with string operand": {"name": Condition{OpIsEmpty: "yes"}},
		}

		for name, e := range cases {
			t.Run(name, func(t *testing.T) {
				var verr *ValidationError
				assert.ErrorAs(t, e.Validate(schema), &verr)
			})
		}
	})

	t.Run("rejects operators not applicable to the field kind", func(t *testing.T) {
		cases := map[string]Expression{
			"contains on number": {"price": Condition{OpContains: "1"}},
			"hasSome on string":  {"name": Condition{OpHasSome: []any{"a"}}},
			"gt on bool":         {"sold": Condition{OpGt: 1}},
		}

		for name, e := range cases {
			t.Run(name, func(t *testing.T) {
				var verr *ValidationError
				assert.ErrorAs(t, e.Validate(schema), &verr)
			})
		}
	})

	t.Run("nil schema skips field checks only", func(t *testing.T) {
		e := Expression{"anything": Condition{OpEq: 1}}
		assert.NoError(t, e.Validate(nil))

		bad := Expression{"anything": Condition{OpHasSome: "scalar"}}
		assert.Error(t, bad.Validate(nil))
	})
}

func TestExpressionJSON(t *testing.T) {
	e := Expression{
		"price": Condition{OpGte: 10.0, OpLte: 50.0},
		"tags":  Condition{OpHasSome: []any{"a", "b"}},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var back Expression
	require.NoError(t, json.Unmarshal(data, &back))

	assert.True(t, Equivalent(e, back))
	assert.JSONEq(t, `{"price":{"$gte":10,"$lte":50},"tags":{"$hasSome":["a","b"]}}`, string(data))
}
