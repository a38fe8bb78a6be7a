package filter

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Parser parses filter tokens into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
	peek    Token
}

// NewParser creates a parser for the input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Prime the parser with two tokens
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the input and returns its expression. Empty input yields a
// nil expression, which matches everything.
func (p *Parser) Parse() (Expr, error) {
	if p.current.Type == TokenEOF {
		return nil, nil
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.current.Literal, p.current.Pos)
	}
	return expr, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

// parseExpression handles "or" (lowest precedence).
func (p *Parser) parseExpression() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		p.nextToken()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenOr, Right: right}
	}
	return left, nil
}

// parseTerm handles "and".
func (p *Parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenAnd {
		p.nextToken()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: TokenAnd, Right: right}
	}
	return left, nil
}

// parseFactor handles "not", parentheses and comparisons.
func (p *Parser) parseFactor() (Expr, error) {
	switch p.current.Type {
	case TokenNot:
		p.nextToken()
		expr, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil

	case TokenLParen:
		p.nextToken()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %q", p.current.Pos, p.current.Literal)
		}
		p.nextToken()
		return expr, nil

	case TokenIdent:
		return p.parseComparison()

	case TokenIllegal:
		return nil, fmt.Errorf("illegal input %q at position %d", p.current.Literal, p.current.Pos)

	default:
		return nil, fmt.Errorf("expected attribute name at position %d, got %q", p.current.Pos, p.current.Literal)
	}
}

// parseComparison handles "field op value", "field [not] in (...)" and a
// bare field.
func (p *Parser) parseComparison() (Expr, error) {
	field := p.current.Literal
	p.nextToken()

	if p.current.Type == TokenIn {
		return p.parseIn(field, false)
	}
	if p.current.Type == TokenNot && p.peek.Type == TokenIn {
		p.nextToken()
		return p.parseIn(field, true)
	}
	if !p.current.Type.IsComparisonOp() {
		return &PresentExpr{Field: field}, nil
	}

	op := p.current.Type
	p.nextToken()

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	cmp := &CompareExpr{Field: field, Op: op, Value: value}
	if op == TokenMatches {
		c, err := semver.NewConstraint(value.String)
		if err != nil {
			return nil, fmt.Errorf("invalid version constraint %q: %w", value.String, err)
		}
		cmp.Constraint = c
	}
	return cmp, nil
}

// parseIn handles the value list of "in" and "not in".
func (p *Parser) parseIn(field string, not bool) (Expr, error) {
	p.nextToken() // consume "in"

	if p.current.Type != TokenLParen {
		return nil, fmt.Errorf("expected '(' after in at position %d", p.current.Pos)
	}
	p.nextToken()

	var values []Value
	for {
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		if p.current.Type == TokenRParen {
			p.nextToken()
			break
		}
		if p.current.Type != TokenComma {
			return nil, fmt.Errorf("expected ',' or ')' at position %d, got %q", p.current.Pos, p.current.Literal)
		}
		p.nextToken()
	}

	return &InExpr{Field: field, Values: values, Not: not}, nil
}

// parseValue parses a literal value.
func (p *Parser) parseValue() (Value, error) {
	tok := p.current
	var v Value

	switch tok.Type {
	case TokenString:
		v = Value{Type: ValueString, Raw: fmt.Sprintf("%q", tok.Literal), String: tok.Literal}
	case TokenNumber:
		v = numberValue(tok.Literal)
	case TokenTrue, TokenFalse:
		v = Value{Type: ValueBool, Raw: tok.Literal, String: tok.Literal, Bool: tok.Type == TokenTrue}
	case TokenIdent:
		v = Value{Type: ValueString, Raw: tok.Literal, String: tok.Literal}
	default:
		return Value{}, fmt.Errorf("expected value at position %d, got %q", tok.Pos, tok.Literal)
	}

	p.nextToken()
	return v, nil
}
