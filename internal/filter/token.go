// Package filter implements the attribute query language used to select
// handles, plus structural and lenient filters built on it.
//
//	name = "db" and service.ranking >= 10
//	region in (eu, us) and not deprecated
//	tags ~ fast or version matches "^1.2"
package filter

import "strings"

// TokenType represents the type of lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent  // attribute keys, unquoted values
	TokenString // "quoted" or 'quoted'
	TokenNumber // integers, decimals, versions

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,

	// Comparison operators
	TokenEq          // =
	TokenNeq         // !=
	TokenLt          // <
	TokenGt          // >
	TokenLte         // <=
	TokenGte         // >=
	TokenContains    // ~
	TokenNotContains // !~
	TokenMatches     // matches (semver constraint)

	// Logical operators
	TokenAnd
	TokenOr
	TokenNot

	// Set operator
	TokenIn

	// Boolean literals
	TokenTrue
	TokenFalse
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIllegal:
		return "ILLEGAL"
	case TokenIdent:
		return "IDENT"
	case TokenString:
		return "STRING"
	case TokenNumber:
		return "NUMBER"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	case TokenEq:
		return "="
	case TokenNeq:
		return "!="
	case TokenLt:
		return "<"
	case TokenGt:
		return ">"
	case TokenLte:
		return "<="
	case TokenGte:
		return ">="
	case TokenContains:
		return "~"
	case TokenNotContains:
		return "!~"
	case TokenMatches:
		return "MATCHES"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenIn:
		return "IN"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

var keywords = map[string]TokenType{
	"and":     TokenAnd,
	"or":      TokenOr,
	"not":     TokenNot,
	"in":      TokenIn,
	"matches": TokenMatches,
	"true":    TokenTrue,
	"false":   TokenFalse,
}

// LookupKeyword returns the keyword token for ident, or TokenIdent.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return TokenIdent
}

// IsComparisonOp reports whether t compares a field with a value.
func (t TokenType) IsComparisonOp() bool {
	switch t {
	case TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte, TokenContains, TokenNotContains, TokenMatches:
		return true
	}
	return false
}
