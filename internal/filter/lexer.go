package filter

// Lexer tokenizes filter input.
type Lexer struct {
	input string
	pos   int  // position after ch
	ch    byte // current character
}

// NewLexer creates a lexer for input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos - 1}

	switch l.ch {
	case '(':
		tok.Type, tok.Literal = TokenLParen, "("
	case ')':
		tok.Type, tok.Literal = TokenRParen, ")"
	case ',':
		tok.Type, tok.Literal = TokenComma, ","
	case '=':
		tok.Type, tok.Literal = TokenEq, "="
	case '~':
		tok.Type, tok.Literal = TokenContains, "~"
	case '!':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok.Type, tok.Literal = TokenNeq, "!="
		case '~':
			l.readChar()
			tok.Type, tok.Literal = TokenNotContains, "!~"
		default:
			tok.Type, tok.Literal = TokenIllegal, "!"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenLte, "<="
		} else {
			tok.Type, tok.Literal = TokenLt, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TokenGte, ">="
		} else {
			tok.Type, tok.Literal = TokenGt, ">"
		}
	case '"', '\'':
		tok.Type = TokenString
		lit, ok := l.readString(l.ch)
		tok.Literal = lit
		if !ok {
			tok.Type = TokenIllegal
		}
		return tok
	case 0:
		tok.Type = TokenEOF
		return tok
	default:
		switch {
		case isLetter(l.ch):
			tok.Literal = l.readIdentifier()
			tok.Type = LookupKeyword(tok.Literal)
			return tok
		case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
			tok.Literal = l.readNumber()
			tok.Type = TokenNumber
			return tok
		default:
			tok.Type, tok.Literal = TokenIllegal, string(l.ch)
		}
	}

	l.readChar()
	return tok
}

func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.pos]
	}
	l.pos++
}

func (l *Lexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier reads an attribute key. Dots separate namespaces, as in
// service.ranking.
func (l *Lexer) readIdentifier() string {
	start := l.pos - 1
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '-' || l.ch == '.' {
		l.readChar()
	}
	return l.input[start : l.pos-1]
}

// readString reads a quoted string. ok is false when it is unterminated.
func (l *Lexer) readString(quote byte) (string, bool) {
	l.readChar()
	start := l.pos - 1
	for l.ch != quote && l.ch != 0 {
		l.readChar()
	}
	str := l.input[start : l.pos-1]
	if l.ch != quote {
		return str, false
	}
	l.readChar()
	return str, true
}

// readNumber reads an integer, a decimal or a version such as 1.2.0-rc.1+build.
func (l *Lexer) readNumber() string {
	start := l.pos - 1
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	if l.ch == '-' || l.ch == '+' {
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '.' || l.ch == '-' || l.ch == '+' {
			l.readChar()
		}
	}
	return l.input[start : l.pos-1]
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
