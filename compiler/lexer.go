package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/larklang/lark/value"
)

// The maximum depth that string interpolation can nest:
//
//	"outside %(one + "%(two + "%(three)")")"
//
// has three levels. The limit bounds the unmatched-paren counter stack.
const maxInterpolationNesting = 8

// Lexer turns one source buffer into a pull-based token stream. It never
// fails: invalid input produces an ERROR token, sets the sticky error flag
// and scanning continues, so one pass can surface several independent
// problems.
//
// Interpolated strings make the lexer not strictly regular: a ")" is either
// a RIGHT_PAREN token or the end of an interpolated expression depending on
// how many unmatched "(" are open at the current interpolation level. The
// parens stack tracks one counter per active nesting level.
type Lexer struct {
	module string
	source string

	// The beginning of the currently-being-lexed token.
	tokenStart int

	// The current character cursor.
	pos int

	// The 1-based line of the cursor.
	line int

	parens    [maxInterpolationNesting]int
	numParens int

	reporter Reporter

	// When false, diagnostics are suppressed entirely; hasError is still
	// set so the caller can refuse the output. Used when a module is
	// compiled speculatively, e.g. for an existence check.
	printErrors bool

	hasError bool
}

// NewLexer creates a lexer over source. The reporter may be nil.
func NewLexer(module, source string, reporter Reporter, printErrors bool) *Lexer {
	// Ignore a leading byte-order mark.
	source = strings.TrimPrefix(source, "\xEF\xBB\xBF")
	return &Lexer{
		module:      module,
		source:      source,
		line:        1,
		reporter:    reporter,
		printErrors: printErrors,
	}
}

// HasError reports whether any lexical error has occurred.
func (l *Lexer) HasError() bool { return l.hasError }

// Module returns the module name diagnostics are attributed to.
func (l *Lexer) Module() string { return l.module }

func (l *Lexer) error(msg string) {
	l.hasError = true
	if !l.printErrors || l.reporter == nil {
		return
	}
	l.reporter.Report(Diagnostic{Module: l.module, Line: l.line, Kind: DiagLexical, Message: msg})
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

// next consumes and returns the current character, or 0 at end of input.
func (l *Lexer) next() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	c := l.source[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

// match consumes the current character only if it is c.
func (l *Lexer) match(c byte) bool {
	if l.peek() != c {
		return false
	}
	l.next()
	return true
}

func (l *Lexer) make(typ TokenType) Token {
	t := Token{Type: typ, Lexeme: l.source[l.tokenStart:l.pos], Line: l.line}
	switch typ {
	case TokenLine:
		// A newline token belongs to the line it ends.
		t.Line--
	case TokenErr, TokenEOF:
		t.Lexeme = ""
	}
	return t
}

func isName(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// NextToken lexes and returns the next token. At end of input it returns
// EOF tokens forever.
func (l *Lexer) NextToken() Token {
	for {
		l.tokenStart = l.pos
		if l.pos >= len(l.source) {
			return l.make(TokenEOF)
		}

		c := l.next()
		switch c {
		case '(':
			// If we are inside an interpolated expression, count the
			// unmatched "(".
			if l.numParens > 0 {
				l.parens[l.numParens-1]++
			}
			return l.make(TokenLeftParen)

		case ')':
			if l.numParens > 0 {
				l.parens[l.numParens-1]--
				if l.parens[l.numParens-1] == 0 {
					// The interpolated expression has ended; this ")"
					// begins the next section of the template string.
					l.numParens--
					return l.readString()
				}
			}
			return l.make(TokenRightParen)

		case '[':
			return l.make(TokenLeftBracket)
		case ']':
			return l.make(TokenRightBracket)
		case '{':
			return l.make(TokenLeftBrace)
		case '}':
			return l.make(TokenRightBrace)
		case ':':
			return l.make(TokenColon)
		case ',':
			return l.make(TokenComma)
		case '*':
			return l.make(TokenStar)
		case '%':
			return l.make(TokenPercent)
		case '^':
			return l.make(TokenCaret)
		case '?':
			return l.make(TokenQuestion)
		case '~':
			return l.make(TokenTilde)
		case '+':
			return l.make(TokenPlus)
		case '-':
			return l.make(TokenMinus)

		case '#':
			// Ignore a shebang on the first line.
			if l.line == 1 && l.peek() == '!' && l.peekNext() == '/' {
				l.skipLineComment()
				continue
			}
			return l.make(TokenHash)

		case '|':
			return l.twoChar('|', TokenPipePipe, TokenPipe)
		case '&':
			return l.twoChar('&', TokenAmpAmp, TokenAmp)
		case '=':
			return l.twoChar('=', TokenEqEq, TokenEq)
		case '!':
			return l.twoChar('=', TokenBangEq, TokenBang)

		case '.':
			if l.match('.') {
				return l.twoChar('.', TokenDotDotDot, TokenDotDot)
			}
			return l.make(TokenDot)

		case '<':
			if l.match('<') {
				return l.make(TokenLtLt)
			}
			return l.twoChar('=', TokenLtEq, TokenLt)
		case '>':
			if l.match('>') {
				return l.make(TokenGtGt)
			}
			return l.twoChar('=', TokenGtEq, TokenGt)

		case '/':
			if l.match('/') {
				l.skipLineComment()
				continue
			}
			if l.match('*') {
				l.skipBlockComment()
				continue
			}
			return l.make(TokenSlash)

		case '"':
			if l.peek() == '"' && l.peekNext() == '"' {
				return l.readRawString()
			}
			return l.readString()

		case '_':
			if l.peek() == '_' {
				return l.readName(TokenStaticField)
			}
			return l.readName(TokenField)

		case '\n':
			return l.make(TokenLine)

		case ' ', '\r', '\t':
			for l.peek() == ' ' || l.peek() == '\r' || l.peek() == '\t' {
				l.next()
			}
			continue

		case '0':
			if l.peek() == 'x' {
				return l.readHexNumber()
			}
			return l.readNumber()

		default:
			if isDigit(c) {
				return l.readNumber()
			}
			if isName(c) {
				return l.readName(TokenName)
			}
			if c >= 32 && c <= 126 {
				l.error(fmt.Sprintf("Invalid character '%c'.", c))
			} else {
				l.error(fmt.Sprintf("Invalid byte 0x%x.", c))
			}
			return l.make(TokenErr)
		}
	}
}

// twoChar consumes c and makes a token of type two if the current character
// is c, otherwise a token of type one.
func (l *Lexer) twoChar(c byte, two, one TokenType) Token {
	if l.match(c) {
		return l.make(two)
	}
	return l.make(one)
}

// skipLineComment skips the rest of the current line. The newline itself is
// left for NextToken so it still produces a LINE token.
func (l *Lexer) skipLineComment() {
	for l.peek() != '\n' && l.pos < len(l.source) {
		l.next()
	}
}

// skipBlockComment skips a /* ... */ comment. They nest.
func (l *Lexer) skipBlockComment() {
	nesting := 1
	for nesting > 0 {
		if l.pos >= len(l.source) {
			l.error("Unterminated block comment.")
			return
		}
		if l.peek() == '/' && l.peekNext() == '*' {
			l.next()
			l.next()
			nesting++
			continue
		}
		if l.peek() == '*' && l.peekNext() == '/' {
			l.next()
			l.next()
			nesting--
			continue
		}
		l.next()
	}
}

// readName finishes lexing an identifier, handling reserved words.
func (l *Lexer) readName(typ TokenType) Token {
	for isName(l.peek()) || isDigit(l.peek()) {
		l.next()
	}
	lexeme := l.source[l.tokenStart:l.pos]
	if typ == TokenName {
		for _, kw := range keywords {
			if len(kw.word) == len(lexeme) && kw.word == lexeme {
				typ = kw.typ
				break
			}
		}
	}
	return l.make(typ)
}

// readHexDigit reads the next character, which should be a hex digit, and
// returns its numeric value, or -1 without consuming otherwise.
func (l *Lexer) readHexDigit() int {
	c := l.next()
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	// Don't consume it if it isn't expected. Keeps us from reading past
	// the end of an unterminated string.
	if c != 0 {
		l.pos--
	}
	return -1
}

// readNumber finishes lexing a decimal number literal.
func (l *Lexer) readNumber() Token {
	for isDigit(l.peek()) {
		l.next()
	}

	// See if it has a floating point. Make sure there is a digit after the
	// "." so we don't get confused by method calls on number literals.
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.next()
		for isDigit(l.peek()) {
			l.next()
		}
	}

	// See if the number is in scientific notation.
	if l.match('e') || l.match('E') {
		// Allow a single positive/negative exponent symbol.
		if !l.match('+') {
			l.match('-')
		}
		if !isDigit(l.peek()) {
			l.error("Unterminated scientific notation.")
		}
		for isDigit(l.peek()) {
			l.next()
		}
	}

	return l.makeNumber(false)
}

// readHexNumber finishes lexing a hexadecimal number literal.
func (l *Lexer) readHexNumber() Token {
	// Skip past the `x`.
	l.next()
	for l.readHexDigit() != -1 {
	}
	return l.makeNumber(true)
}

func (l *Lexer) makeNumber(isHex bool) Token {
	lexeme := l.source[l.tokenStart:l.pos]
	var n float64
	var err error
	if isHex {
		var u uint64
		u, err = strconv.ParseUint(lexeme[2:], 16, 64)
		n = float64(u)
	} else {
		n, err = strconv.ParseFloat(lexeme, 64)
	}
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			l.error("Number literal was too large.")
		} else {
			l.error("Invalid number literal.")
		}
		n = 0
	}
	tok := l.make(TokenNumber)
	tok.Value = value.Num(n)
	return tok
}

// readHexEscape reads digits hex digits in a string literal and returns
// their combined numeric value.
func (l *Lexer) readHexEscape(digits int, description string) int {
	v := 0
	for i := 0; i < digits; i++ {
		d := l.readHexDigit()
		if d == -1 {
			l.error(fmt.Sprintf("Invalid %s escape sequence.", description))
			break
		}
		v = v*16 + d
	}
	return v
}

// readUnicodeEscape reads a Unicode escape and appends it as UTF-8.
func (l *Lexer) readUnicodeEscape(buf []byte, digits int) []byte {
	v := l.readHexEscape(digits, "Unicode")
	return utf8.AppendRune(buf, rune(v))
}

// readString finishes lexing a string literal, or the section of a template
// string up to the next interpolated expression.
func (l *Lexer) readString() Token {
	typ := TokenString
	var buf []byte

	for {
		if l.pos >= len(l.source) {
			l.error("Unterminated string.")
			break
		}
		c := l.next()
		if c == '"' {
			break
		}

		if c == '%' {
			if l.numParens < maxInterpolationNesting {
				// Interpolation is going to allocate a level of paren
				// tracking; the "(" we expect next is its first unmatched
				// paren.
				if l.next() != '(' {
					l.error("Expect '(' after '%'.")
				}
				l.parens[l.numParens] = 1
				l.numParens++
				typ = TokenInterpolation
				break
			}
			l.error(fmt.Sprintf("Interpolation may only nest %d levels deep.",
				maxInterpolationNesting))
			continue
		}

		if c == '\\' {
			switch e := l.next(); e {
			case '"':
				buf = append(buf, '"')
			case '\\':
				buf = append(buf, '\\')
			case '%':
				buf = append(buf, '%')
			case '0':
				buf = append(buf, 0)
			case 'a':
				buf = append(buf, '\a')
			case 'b':
				buf = append(buf, '\b')
			case 'e':
				buf = append(buf, 0x1b)
			case 'f':
				buf = append(buf, '\f')
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'v':
				buf = append(buf, '\v')
			case 'x':
				buf = append(buf, byte(l.readHexEscape(2, "byte")))
			case 'u':
				buf = l.readUnicodeEscape(buf, 4)
			case 'U':
				buf = l.readUnicodeEscape(buf, 8)
			default:
				l.error(fmt.Sprintf("Invalid escape character '%c'.", e))
			}
			continue
		}

		buf = append(buf, c)
	}

	tok := l.make(typ)
	tok.Value = value.Str(string(buf))
	return tok
}

// readRawString finishes lexing a """ ... """ literal. If the first content
// line (up to and including its newline) is purely leading whitespace it is
// dropped, and symmetrically for the last line, so multi-line literals can
// be laid out without smuggling their surrounding indentation into the
// value. Single-line literals have no first or last newline to anchor on
// and are left untouched.
func (l *Lexer) readRawString() Token {
	// Consume the second and third ".
	l.next()
	l.next()

	var buf []byte
	firstNewline, lastNewline := -1, -1
	skipStart, skipEnd := 0, -1

	for {
		c := l.next()
		c1 := l.peek()
		c2 := l.peekNext()

		if c == '\r' {
			continue
		}

		if c == '\n' {
			lastNewline = len(buf)
			skipEnd = lastNewline
			if firstNewline == -1 {
				firstNewline = len(buf)
			}
		}

		if c == '"' && c1 == '"' && c2 == '"' {
			break
		}

		isWhitespace := c == ' ' || c == '\t'
		if c != '\n' && !isWhitespace {
			skipEnd = -1
		}

		// While we have seen only whitespace and no newline yet, count the
		// characters as skippable until we know otherwise.
		if skipStart != -1 && isWhitespace && firstNewline == -1 {
			skipStart = len(buf) + 1
		}
		if firstNewline == -1 && !isWhitespace && c != '\n' {
			skipStart = -1
		}

		if c == 0 || c1 == 0 || c2 == 0 {
			l.error("Unterminated raw string.")
			// Don't consume past the end of the buffer.
			if c != 0 {
				l.pos--
			}
			break
		}

		buf = append(buf, c)
	}

	// Consume the second and third " of the terminator.
	l.next()
	l.next()

	offset, count := 0, len(buf)
	if firstNewline != -1 && skipStart == firstNewline {
		offset = firstNewline + 1
	}
	if lastNewline != -1 && skipEnd == lastNewline {
		count = lastNewline
	}
	if offset > count {
		count = 0
	} else {
		count -= offset
	}

	tok := l.make(TokenString)
	tok.Value = value.Str(string(buf[offset : offset+count]))
	return tok
}

// Tokenize returns all tokens from the input, stopping after EOF. Used by
// tooling; compilation pulls tokens on demand instead.
func Tokenize(module, source string, reporter Reporter) []Token {
	l := NewLexer(module, source, reporter, true)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
