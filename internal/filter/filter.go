package filter

import (
	"fmt"
	"strings"

	"github.com/zjrosen/rankreg/internal/handle"
	"github.com/zjrosen/rankreg/internal/log"
)

// Query is a compiled filter expression.
type Query struct {
	text string
	expr Expr
}

// Parse compiles text. Empty text matches everything.
func Parse(text string) (*Query, error) {
	expr, err := NewParser(text).Parse()
	if err != nil {
		return nil, fmt.Errorf("parse filter %q: %w", text, err)
	}
	return &Query{text: strings.TrimSpace(text), expr: expr}, nil
}

// MustParse is Parse that panics on malformed input.
func MustParse(text string) *Query {
	q, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return q
}

// Matches evaluates the query against attrs.
func (q *Query) Matches(attrs handle.Attributes) bool {
	return Eval(q.expr, attrs)
}

// Expr returns the parsed expression; nil for the empty query.
func (q *Query) Expr() Expr {
	return q.expr
}

// String returns the source text.
func (q *Query) String() string {
	return q.text
}

// None matches nothing.
var None handle.Filter = handle.FilterFunc(func(handle.Attributes) bool { return false })

// Equal matches attributes that contain every key of want with an equal
// value. List attributes match when any element is equal.
func Equal(want map[string]any) handle.Filter {
	want = handle.Attributes(want).Clone()
	return handle.FilterFunc(func(attrs handle.Attributes) bool {
		for k, v := range want {
			elems, ok := elements(attrs, k)
			if !ok {
				return false
			}
			if !anyElement(elems, func(a any) bool { return a == v || textOf(a) == textOf(v) }) {
				return false
			}
		}
		return true
	})
}

// Lenient compiles text, logging a warning and matching nothing when it is
// malformed.
func Lenient(text string) handle.Filter {
	q, err := Parse(text)
	if err != nil {
		log.Warn(log.CatFilter, "malformed filter matches nothing", "filter", text, "error", err)
		return None
	}
	return q
}

var _ handle.Filter = (*Query)(nil)
