// Package compiler implements the Lark front end: a context-sensitive lexer
// and a single-pass compiler that parses source text and emits stack-machine
// bytecode directly, with no intermediate syntax tree.
package compiler

import (
	"fmt"

	"github.com/larklang/lark/value"
)

// TokenType identifies the lexical category of a token.
type TokenType int

const (
	TokenLeftParen TokenType = iota
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
	TokenColon
	TokenDot
	TokenDotDot
	TokenDotDotDot
	TokenComma
	TokenStar
	TokenSlash
	TokenPercent
	TokenHash
	TokenPlus
	TokenMinus
	TokenLtLt
	TokenGtGt
	TokenPipe
	TokenPipePipe
	TokenCaret
	TokenAmp
	TokenAmpAmp
	TokenBang
	TokenTilde
	TokenQuestion
	TokenEq
	TokenLt
	TokenGt
	TokenLtEq
	TokenGtEq
	TokenEqEq
	TokenBangEq

	TokenBreak
	TokenContinue
	TokenClass
	TokenConstruct
	TokenElse
	TokenFalse
	TokenFor
	TokenForeign
	TokenIf
	TokenImport
	TokenAs
	TokenIn
	TokenIs
	TokenNull
	TokenReturn
	TokenStatic
	TokenSuper
	TokenThis
	TokenTrue
	TokenVar
	TokenWhile

	// A `_name` instance field or `__name` static field reference.
	TokenField
	TokenStaticField

	TokenName
	TokenNumber

	// A string literal without any interpolation, or the last section of a
	// string following the final interpolated expression.
	TokenString

	// A portion of a string literal preceding an interpolated expression:
	//
	//	"a %(b) c %(d) e"
	//
	// is tokenized to INTERPOLATION "a ", NAME b, INTERPOLATION " c ",
	// NAME d, STRING " e".
	TokenInterpolation

	TokenLine

	TokenErr
	TokenEOF
)

var tokenNames = map[TokenType]string{
	TokenLeftParen:     "(",
	TokenRightParen:    ")",
	TokenLeftBracket:   "[",
	TokenRightBracket:  "]",
	TokenLeftBrace:     "{",
	TokenRightBrace:    "}",
	TokenColon:         ":",
	TokenDot:           ".",
	TokenDotDot:        "..",
	TokenDotDotDot:     "...",
	TokenComma:         ",",
	TokenStar:          "*",
	TokenSlash:         "/",
	TokenPercent:       "%",
	TokenHash:          "#",
	TokenPlus:          "+",
	TokenMinus:         "-",
	TokenLtLt:          "<<",
	TokenGtGt:          ">>",
	TokenPipe:          "|",
	TokenPipePipe:      "||",
	TokenCaret:         "^",
	TokenAmp:           "&",
	TokenAmpAmp:        "&&",
	TokenBang:          "!",
	TokenTilde:         "~",
	TokenQuestion:      "?",
	TokenEq:            "=",
	TokenLt:            "<",
	TokenGt:            ">",
	TokenLtEq:          "<=",
	TokenGtEq:          ">=",
	TokenEqEq:          "==",
	TokenBangEq:        "!=",
	TokenBreak:         "break",
	TokenContinue:      "continue",
	TokenClass:         "class",
	TokenConstruct:     "construct",
	TokenElse:          "else",
	TokenFalse:         "false",
	TokenFor:           "for",
	TokenForeign:       "foreign",
	TokenIf:            "if",
	TokenImport:        "import",
	TokenAs:            "as",
	TokenIn:            "in",
	TokenIs:            "is",
	TokenNull:          "null",
	TokenReturn:        "return",
	TokenStatic:        "static",
	TokenSuper:         "super",
	TokenThis:          "this",
	TokenTrue:          "true",
	TokenVar:           "var",
	TokenWhile:         "while",
	TokenField:         "FIELD",
	TokenStaticField:   "STATIC_FIELD",
	TokenName:          "NAME",
	TokenNumber:        "NUMBER",
	TokenString:        "STRING",
	TokenInterpolation: "INTERPOLATION",
	TokenLine:          "LINE",
	TokenErr:           "ERROR",
	TokenEOF:           "EOF",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// The table of reserved words. Lookup is an exact length+text comparison
// over this list, in order.
var keywords = []struct {
	word string
	typ  TokenType
}{
	{"break", TokenBreak},
	{"continue", TokenContinue},
	{"class", TokenClass},
	{"construct", TokenConstruct},
	{"else", TokenElse},
	{"false", TokenFalse},
	{"for", TokenFor},
	{"foreign", TokenForeign},
	{"if", TokenIf},
	{"import", TokenImport},
	{"as", TokenAs},
	{"in", TokenIn},
	{"is", TokenIs},
	{"null", TokenNull},
	{"return", TokenReturn},
	{"static", TokenStatic},
	{"super", TokenSuper},
	{"this", TokenThis},
	{"true", TokenTrue},
	{"var", TokenVar},
	{"while", TokenWhile},
}

// Token is one lexed token. Lexeme is a view into the source buffer the
// token was produced from; Value is the parsed literal for NUMBER, STRING
// and INTERPOLATION tokens.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Value  value.Value
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenLine:
		return "LINE"
	default:
		return fmt.Sprintf("%s(%q)", t.Type, t.Lexeme)
	}
}
