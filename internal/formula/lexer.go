package formula

import (
	"fmt"
	"strconv"
)

// tokenKind classifies lexer output.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	pos  int
	text string
	num  float64 // tokNumber
}

// lexer produces tokens from a formula string. It is a plain byte scanner;
// the grammar is ASCII only.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

// next returns the next token, advancing the lexer.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch c {
	case '+':
		l.pos++
		return token{kind: tokPlus, pos: start, text: "+"}, nil
	case '-':
		l.pos++
		return token{kind: tokMinus, pos: start, text: "-"}, nil
	case '*':
		l.pos++
		return token{kind: tokStar, pos: start, text: "*"}, nil
	case '/':
		l.pos++
		return token{kind: tokSlash, pos: start, text: "/"}, nil
	case '(':
		l.pos++
		return token{kind: tokLParen, pos: start, text: "("}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, pos: start, text: ")"}, nil
	case ',':
		l.pos++
		return token{kind: tokComma, pos: start, text: ","}, nil
	}

	if isDigit(c) || c == '.' {
		return l.lexNumber(start)
	}
	if isLetter(c) {
		for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, pos: start, text: l.input[start:l.pos]}, nil
	}

	return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
}

func (l *lexer) lexNumber(start int) (token, error) {
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	text := l.input[start:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("malformed number %q", text)}
	}
	return token{kind: tokNumber, pos: start, text: text, num: v}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
