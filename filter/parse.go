package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Parse turns an AIP-160 filter string into an Expression, validated against
// the schema. The expression model is a conjunction of field conditions, so
// only AND, comparisons, and has (`field:value`) are accepted; OR and NOT are
// rejected. An empty string parses to the "no filter" value.
func Parse(s string, schema Schema) (Expression, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	decls, err := declarations(schema)
	if err != nil {
		return nil, err
	}

	parsed, err := filtering.ParseFilterString(s, decls)
	if err != nil {
		return nil, fmt.Errorf("filter: parse: %w", err)
	}

	out := Expression{}
	if err := collect(parsed.CheckedExpr.Expr, schema, out); err != nil {
		return nil, err
	}

	if err := out.Validate(schema); err != nil {
		return nil, err
	}

	return out, nil
}

func declarations(schema Schema) (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}

	for name, kind := range schema {
		switch kind {
		case KindString:
			opts = append(opts, filtering.DeclareIdent(name, filtering.TypeString))
		case KindNumber:
			opts = append(opts, filtering.DeclareIdent(name, filtering.TypeFloat))
		case KindBool:
			opts = append(opts, filtering.DeclareIdent(name, filtering.TypeBool))
		case KindTime:
			opts = append(opts, filtering.DeclareIdent(name, filtering.TypeTimestamp))
		case KindList:
			opts = append(opts, filtering.DeclareIdent(name, filtering.TypeList(filtering.TypeString)))
		default:
			return nil, fmt.Errorf("filter: unsupported field kind %q for %s", kind, name)
		}
	}

	return filtering.NewDeclarations(opts...)
}

// collect walks a checked expression, merging field conditions into out.
func collect(e *expr.Expr, schema Schema, out Expression) error {
	if e == nil {
		return nil
	}

	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return fmt.Errorf("filter: unsupported expression type %T", e.ExprKind)
	}

	switch call.CallExpr.Function {
	case "_&&_", "AND":
		for _, arg := range call.CallExpr.Args {
			if err := collect(arg, schema, out); err != nil {
				return err
			}
		}
		return nil
	case "_||_", "OR":
		return fmt.Errorf("filter: disjunction is not supported")
	case "!_", "NOT":
		return fmt.Errorf("filter: negation is not supported")
	case "_==_", "=":
		return collectComparison(call.CallExpr.Args, OpEq, out)
	case "_!=_", "!=":
		return collectComparison(call.CallExpr.Args, OpNe, out)
	case "_<_", "<":
		return collectComparison(call.CallExpr.Args, OpLt, out)
	case "_<=_", "<=":
		return collectComparison(call.CallExpr.Args, OpLte, out)
	case "_>_", ">":
		return collectComparison(call.CallExpr.Args, OpGt, out)
	case "_>=_", ">=":
		return collectComparison(call.CallExpr.Args, OpGte, out)
	case ":", "has":
		return collectHas(call.CallExpr.Args, schema, out)
	default:
		return fmt.Errorf("filter: unsupported function %q", call.CallExpr.Function)
	}
}

func collectComparison(args []*expr.Expr, op Operator, out Expression) error {
	if len(args) != 2 {
		return fmt.Errorf("filter: comparison requires 2 arguments")
	}

	field, err := fieldName(args[0])
	if err != nil {
		return err
	}

	value, err := constValue(args[1])
	if err != nil {
		return err
	}

	return merge(out, field, op, value)
}

// collectHas maps AIP's has operator onto the expression vocabulary:
// membership for list fields, substring match for strings.
func collectHas(args []*expr.Expr, schema Schema, out Expression) error {
	if len(args) != 2 {
		return fmt.Errorf("filter: has requires 2 arguments")
	}

	field, err := fieldName(args[0])
	if err != nil {
		return err
	}

	value, err := constValue(args[1])
	if err != nil {
		return err
	}

	switch schema[field] {
	case KindList:
		return merge(out, field, OpHasSome, []any{value})
	case KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("filter: field %q: has argument must be a string", field)
		}
		return merge(out, field, OpContains, s)
	default:
		return fmt.Errorf("filter: field %q: has is only supported on string and list fields", field)
	}
}

func merge(out Expression, field string, op Operator, value any) error {
	cond, ok := out[field]
	if !ok {
		cond = Condition{}
		out[field] = cond
	}

	if _, dup := cond[op]; dup {
		return fmt.Errorf("filter: field %q: duplicate %s constraint", field, op)
	}

	cond[op] = value
	return nil
}

func fieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("filter: nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("filter: expected field identifier, got %T", kind)
	}
}

func constValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("filter: nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return constant(kind.ConstExpr)
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return timestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("filter: unsupported function in value position: %s", kind.CallExpr.Function)
	case *expr.Expr_IdentExpr:
		// the checker leaves unquoted values as idents in has expressions
		return kind.IdentExpr.Name, nil
	default:
		return nil, fmt.Errorf("filter: expected constant, got %T", kind)
	}
}

func constant(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("filter: nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return float64(kind.Int64Value), nil
	case *expr.Constant_Uint64Value:
		return float64(kind.Uint64Value), nil
	case *expr.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("filter: unsupported constant type %T", kind)
	}
}

func timestampValue(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, fmt.Errorf("filter: nil timestamp argument")
	}

	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, fmt.Errorf("filter: timestamp argument must be a constant string")
	}

	strVal, ok := kind.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("filter: timestamp argument must be a string")
	}

	t, err := time.Parse(time.RFC3339, strVal.StringValue)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, strVal.StringValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("filter: invalid timestamp %q", strVal.StringValue)
		}
	}

	return t.UTC(), nil
}
