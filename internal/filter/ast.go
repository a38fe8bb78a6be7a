package filter

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Node is the interface for all AST nodes.
type Node interface {
	node()
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
	String() string
}

// BinaryExpr represents "expr and/or expr".
type BinaryExpr struct {
	Left  Expr
	Op    TokenType // TokenAnd or TokenOr
	Right Expr
}

func (b *BinaryExpr) node() {}
func (b *BinaryExpr) expr() {}

func (b *BinaryExpr) String() string {
	return "(" + b.Left.String() + " " + strings.ToLower(b.Op.String()) + " " + b.Right.String() + ")"
}

// NotExpr represents "not expr".
type NotExpr struct {
	Expr Expr
}

func (n *NotExpr) node() {}
func (n *NotExpr) expr() {}

func (n *NotExpr) String() string {
	return "not " + n.Expr.String()
}

// CompareExpr represents "field op value".
type CompareExpr struct {
	Field string
	Op    TokenType
	Value Value

	// Constraint is compiled at parse time for the matches operator.
	Constraint *semver.Constraints
}

func (c *CompareExpr) node() {}
func (c *CompareExpr) expr() {}

func (c *CompareExpr) String() string {
	op := c.Op.String()
	if c.Op == TokenMatches {
		op = "matches"
	}
	return c.Field + " " + op + " " + c.Value.Raw
}

// InExpr represents "field in (values)" or "field not in (values)".
type InExpr struct {
	Field  string
	Values []Value
	Not    bool
}

func (i *InExpr) node() {}
func (i *InExpr) expr() {}

func (i *InExpr) String() string {
	raws := make([]string, len(i.Values))
	for n, v := range i.Values {
		raws[n] = v.Raw
	}
	op := " in "
	if i.Not {
		op = " not in "
	}
	return i.Field + op + "(" + strings.Join(raws, ", ") + ")"
}

// PresentExpr represents a bare field: true when the attribute is set and
// not false.
type PresentExpr struct {
	Field string
}

func (p *PresentExpr) node() {}
func (p *PresentExpr) expr() {}

func (p *PresentExpr) String() string {
	return p.Field
}

// ValueType indicates the type of a Value.
type ValueType int

const (
	ValueString ValueType = iota
	ValueNumber
	ValueVersion
	ValueBool
)

// Value represents a literal value in a query.
type Value struct {
	Type    ValueType
	Raw     string          // Original representation
	String  string          // Unquoted text, set for every type
	Number  float64         // For ValueNumber
	Version *semver.Version // For ValueVersion, and ValueNumber when it also parses as one
	Bool    bool            // For ValueBool
}

// numberValue classifies a numeric token: plain numbers compare numerically,
// dotted ones such as 1.2.0 compare as versions.
func numberValue(lit string) Value {
	v := Value{Raw: lit, String: lit}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		v.Type = ValueNumber
		v.Number = f
		if ver, err := semver.NewVersion(lit); err == nil {
			v.Version = ver
		}
		return v
	}
	if ver, err := semver.StrictNewVersion(lit); err == nil {
		v.Type = ValueVersion
		v.Version = ver
		return v
	}
	if ver, err := semver.NewVersion(lit); err == nil {
		v.Type = ValueVersion
		v.Version = ver
		return v
	}
	v.Type = ValueString
	return v
}
