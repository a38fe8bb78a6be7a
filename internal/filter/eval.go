package filter

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/zjrosen/rankreg/internal/handle"
)

// Eval evaluates expr against attrs. A nil expression matches everything.
//
// A missing attribute satisfies only != and !~ (and "not in"). List valued
// attributes match when any element matches; their negated operators hold
// when no element matches.
func Eval(expr Expr, attrs handle.Attributes) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *BinaryExpr:
		if e.Op == TokenAnd {
			return Eval(e.Left, attrs) && Eval(e.Right, attrs)
		}
		return Eval(e.Left, attrs) || Eval(e.Right, attrs)
	case *NotExpr:
		return !Eval(e.Expr, attrs)
	case *PresentExpr:
		return present(attrs, e.Field)
	case *InExpr:
		return evalIn(e, attrs)
	case *CompareExpr:
		return evalCompare(e, attrs)
	default:
		return false
	}
}

func present(attrs handle.Attributes, field string) bool {
	v, ok := attrs[field]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && !strings.EqualFold(val, "false")
	}
	return true
}

func evalIn(e *InExpr, attrs handle.Attributes) bool {
	elems, ok := elements(attrs, e.Field)
	if !ok {
		return e.Not
	}
	hit := anyElement(elems, func(a any) bool {
		for _, v := range e.Values {
			if equal(a, v) {
				return true
			}
		}
		return false
	})
	return hit != e.Not
}

func evalCompare(e *CompareExpr, attrs handle.Attributes) bool {
	elems, ok := elements(attrs, e.Field)
	if !ok {
		return e.Op == TokenNeq || e.Op == TokenNotContains
	}

	switch e.Op {
	case TokenEq:
		return anyElement(elems, func(a any) bool { return equal(a, e.Value) })
	case TokenNeq:
		return !anyElement(elems, func(a any) bool { return equal(a, e.Value) })
	case TokenContains:
		return anyElement(elems, func(a any) bool { return contains(a, e.Value) })
	case TokenNotContains:
		return !anyElement(elems, func(a any) bool { return contains(a, e.Value) })
	case TokenMatches:
		return anyElement(elems, func(a any) bool {
			ver, ok := versionOf(a)
			return ok && e.Constraint != nil && e.Constraint.Check(ver)
		})
	case TokenLt, TokenGt, TokenLte, TokenGte:
		return anyElement(elems, func(a any) bool {
			c, ok := order(a, e.Value)
			if !ok {
				return false
			}
			switch e.Op {
			case TokenLt:
				return c < 0
			case TokenGt:
				return c > 0
			case TokenLte:
				return c <= 0
			default:
				return c >= 0
			}
		})
	}
	return false
}

// elements flattens a list attribute. ok is false when the attribute is absent.
func elements(attrs handle.Attributes, field string) ([]any, bool) {
	v, ok := attrs[field]
	if !ok || v == nil {
		return nil, false
	}
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	}
	return []any{v}, true
}

func anyElement(elems []any, pred func(any) bool) bool {
	for _, e := range elems {
		if pred(e) {
			return true
		}
	}
	return false
}

func equal(a any, v Value) bool {
	switch v.Type {
	case ValueBool:
		b, ok := boolOf(a)
		return ok && b == v.Bool
	case ValueNumber:
		if n, ok := numberOf(a); ok {
			return n == v.Number
		}
	case ValueVersion:
		if ver, ok := versionOf(a); ok {
			return ver.Equal(v.Version)
		}
	}
	return textOf(a) == v.String
}

func contains(a any, v Value) bool {
	return strings.Contains(strings.ToLower(textOf(a)), strings.ToLower(v.String))
}

// order compares attribute a with v. Go numbers compare numerically, dotted
// strings compare as versions when v is one, anything else falls back to
// string order.
func order(a any, v Value) (int, bool) {
	if _, isText := a.(string); !isText {
		if n, ok := numberOf(a); ok && v.Type == ValueNumber {
			return cmp.Compare(n, v.Number), true
		}
	}
	if v.Version != nil {
		if ver, ok := versionOf(a); ok {
			return ver.Compare(v.Version), true
		}
	}
	if v.Type == ValueNumber {
		if n, ok := numberOf(a); ok {
			return cmp.Compare(n, v.Number), true
		}
		return 0, false
	}
	if v.Type == ValueBool {
		return 0, false
	}
	return strings.Compare(textOf(a), v.String), true
}

func numberOf(a any) (float64, bool) {
	switch n := a.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func versionOf(a any) (*semver.Version, bool) {
	switch v := a.(type) {
	case *semver.Version:
		return v, v != nil
	case semver.Version:
		return &v, true
	}
	ver, err := semver.NewVersion(textOf(a))
	if err != nil {
		return nil, false
	}
	return ver, true
}

func boolOf(a any) (bool, bool) {
	switch b := a.(type) {
	case bool:
		return b, true
	case string:
		v, err := strconv.ParseBool(b)
		return v, err == nil
	}
	return false, false
}

func textOf(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(a)
}
