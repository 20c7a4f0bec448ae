// Package converge evaluates cycle termination conditions.
//
// A convergence expression is a boolean condition over flat field names,
// e.g. `count >= 10` or `done == true and score > 0.9`. The grammar is HCL's
// expression syntax restricted to flat variable references, with the word
// connectives `and`, `or` and `not` accepted as aliases for `&&`, `||` and
// `!`. References to nested fields (`result.done`) are a configuration
// error: the caller is required to flatten the condition node's output
// before evaluation, so a dotted path in the expression always indicates a
// misconfigured workflow rather than a resolvable value.
package converge

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ExpressionError reports a malformed or unsupported convergence expression.
type ExpressionError struct {
	Expr   string
	Detail string
}

// Error implements the error interface.
func (e *ExpressionError) Error() string {
	return fmt.Sprintf("convergence expression %q: %s", e.Expr, e.Detail)
}

// Eval parses the expression and evaluates it against a flat field namespace.
// The result must be a boolean; anything else is an ExpressionError.
func Eval(expr string, flat map[string]any) (bool, error) {
	if expr == "" {
		return false, &ExpressionError{Expr: expr, Detail: "expression is empty"}
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(normalize(expr)), "converge_when", hcl.InitialPos)
	if diags.HasErrors() {
		return false, &ExpressionError{Expr: expr, Detail: diags.Error()}
	}

	// Only bare field names may be referenced. A dotted or indexed
	// traversal means the user expected nested-path resolution, which this
	// evaluator deliberately does not provide.
	for _, traversal := range parsed.Variables() {
		if len(traversal) > 1 {
			return false, &ExpressionError{
				Expr:   expr,
				Detail: fmt.Sprintf("field reference starting at %q is not flat; convergence expressions address fields of the flattened condition output only", traversal.RootName()),
			}
		}
	}

	variables := make(map[string]cty.Value, len(flat))
	for name, value := range flat {
		ctyVal, err := toCty(value)
		if err != nil {
			return false, &ExpressionError{
				Expr:   expr,
				Detail: fmt.Sprintf("field %q: %v", name, err),
			}
		}
		variables[name] = ctyVal
	}

	result, diags := parsed.Value(&hcl.EvalContext{Variables: variables})
	if diags.HasErrors() {
		return false, &ExpressionError{Expr: expr, Detail: diags.Error()}
	}
	if result.IsNull() || !result.Type().Equals(cty.Bool) {
		return false, &ExpressionError{
			Expr:   expr,
			Detail: fmt.Sprintf("expression must produce a boolean, got %s", result.Type().FriendlyName()),
		}
	}
	return result.True(), nil
}

// toCty converts a raw output value into its cty equivalent for evaluation.
func toCty(value any) (cty.Value, error) {
	switch v := value.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(v), nil
	case string:
		return cty.StringVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int32:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case float32:
		return cty.NumberFloatVal(float64(v)), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case map[string]any:
		if len(v) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(v))
		for key, elem := range v {
			converted, err := toCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[key] = converted
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(v))
		for _, elem := range v {
			converted, err := toCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, converted)
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", value)
	}
}
