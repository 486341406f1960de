package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func lexTypes(t *testing.T, source string) ([]TokenType, *CollectReporter) {
	t.Helper()
	rep := &CollectReporter{}
	tokens := Tokenize("main", source, rep)
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types, rep
}

func reportedError(rep *CollectReporter, substr string) bool {
	for _, d := range rep.Diagnostics {
		if strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

func TestOperatorTokens(t *testing.T) {
	tests := []struct {
		source string
		want   []TokenType
	}{
		{"+ - * / %", []TokenType{TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenEOF}},
		{"( ) [ ] { } : ,", []TokenType{TokenLeftParen, TokenRightParen, TokenLeftBracket, TokenRightBracket, TokenLeftBrace, TokenRightBrace, TokenColon, TokenComma, TokenEOF}},
		{"< <= << > >= >>", []TokenType{TokenLt, TokenLtEq, TokenLtLt, TokenGt, TokenGtEq, TokenGtGt, TokenEOF}},
		{"= == ! !=", []TokenType{TokenEq, TokenEqEq, TokenBang, TokenBangEq, TokenEOF}},
		{"| || & && ^ ~ ?", []TokenType{TokenPipe, TokenPipePipe, TokenAmp, TokenAmpAmp, TokenCaret, TokenTilde, TokenQuestion, TokenEOF}},

		// Two-character operators must win over their one-character
		// prefixes even with no spacing.
		{"a&&b", []TokenType{TokenName, TokenAmpAmp, TokenName, TokenEOF}},
		{"a||b", []TokenType{TokenName, TokenPipePipe, TokenName, TokenEOF}},
		{"a==b", []TokenType{TokenName, TokenEqEq, TokenName, TokenEOF}},
		{"a<=b", []TokenType{TokenName, TokenLtEq, TokenName, TokenEOF}},
	}
	for _, tt := range tests {
		got, rep := lexTypes(t, tt.source)
		if len(rep.Diagnostics) != 0 {
			t.Errorf("%q: unexpected diagnostics %v", tt.source, rep.Diagnostics)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q: token mismatch (-want +got):\n%s", tt.source, diff)
		}
	}
}

func TestDotTokens(t *testing.T) {
	tests := []struct {
		source string
		want   []TokenType
	}{
		{"a.b", []TokenType{TokenName, TokenDot, TokenName, TokenEOF}},
		{"1..2", []TokenType{TokenNumber, TokenDotDot, TokenNumber, TokenEOF}},
		{"1...2", []TokenType{TokenNumber, TokenDotDotDot, TokenNumber, TokenEOF}},

		// A "." after a number only belongs to the literal when a digit
		// follows, so methods can be called on number literals.
		{"123.abs", []TokenType{TokenNumber, TokenDot, TokenName, TokenEOF}},
		{"1.5.floor", []TokenType{TokenNumber, TokenDot, TokenName, TokenEOF}},
	}
	for _, tt := range tests {
		got, _ := lexTypes(t, tt.source)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q: token mismatch (-want +got):\n%s", tt.source, diff)
		}
	}
}

func TestNumberLiterals(t *testing.T) {
	tests := []struct {
		source string
		want   float64
	}{
		{"0", 0},
		{"123", 123},
		{"1.5", 1.5},
		{"0x10", 16},
		{"0xdeadBEEF", 3735928559},
		{"1e3", 1000},
		{"1E2", 100},
		{"2.5e-2", 0.025},
		{"1e+2", 100},
	}
	for _, tt := range tests {
		rep := &CollectReporter{}
		tokens := Tokenize("main", tt.source, rep)
		if len(rep.Diagnostics) != 0 {
			t.Errorf("%q: unexpected diagnostics %v", tt.source, rep.Diagnostics)
			continue
		}
		if tokens[0].Type != TokenNumber {
			t.Errorf("%q: got %s, want NUMBER", tt.source, tokens[0].Type)
			continue
		}
		if got := tokens[0].Value.AsNum(); got != tt.want {
			t.Errorf("%q: value = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestNumberErrors(t *testing.T) {
	tests := []struct {
		source string
		errMsg string
	}{
		{"1e", "Unterminated scientific notation."},
		{"1e+", "Unterminated scientific notation."},
		{"1e999", "Number literal was too large."},
	}
	for _, tt := range tests {
		_, rep := lexTypes(t, tt.source)
		if !reportedError(rep, tt.errMsg) {
			t.Errorf("%q: missing error %q, got %v", tt.source, tt.errMsg, rep.Diagnostics)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{`"hello"`, "hello"},
		{`"a\nb\tc"`, "a\nb\tc"},
		{`"\"quoted\""`, `"quoted"`},
		{`"back\\slash"`, `back\slash`},
		{`"\x41BC"`, "ABC"},
		{`"A"`, "A"},
		{`"é"`, "é"},
		{`"\U0001F600"`, "\U0001F600"},
		{`"100\%"`, "100%"},
		{`"\0x"`, "\x00x"},
		{`"\a\b\e\f\r\v"`, "\a\b\x1b\f\r\v"},
	}
	for _, tt := range tests {
		rep := &CollectReporter{}
		tokens := Tokenize("main", tt.source, rep)
		if len(rep.Diagnostics) != 0 {
			t.Errorf("%q: unexpected diagnostics %v", tt.source, rep.Diagnostics)
			continue
		}
		if got := tokens[0].Value.AsString(); got != tt.want {
			t.Errorf("%q: value = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestStringErrors(t *testing.T) {
	tests := []struct {
		source string
		errMsg string
	}{
		{`"abc`, "Unterminated string."},
		{`"\q"`, "Invalid escape character 'q'."},
		{`"\xg0"`, "Invalid byte escape sequence."},
		{`"\u12"`, "Invalid Unicode escape sequence."},
		{`"a %b"`, "Expect '(' after '%'."},
	}
	for _, tt := range tests {
		_, rep := lexTypes(t, tt.source)
		if !reportedError(rep, tt.errMsg) {
			t.Errorf("%q: missing error %q, got %v", tt.source, tt.errMsg, rep.Diagnostics)
		}
	}
}

func TestInterpolation(t *testing.T) {
	rep := &CollectReporter{}
	tokens := Tokenize("main", `"a %(b) c"`, rep)
	want := []TokenType{TokenInterpolation, TokenName, TokenString, TokenEOF}
	got := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		got[i] = tok.Type
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
	if tokens[0].Value.AsString() != "a " {
		t.Errorf("leading section = %q, want %q", tokens[0].Value.AsString(), "a ")
	}
	if tokens[2].Value.AsString() != " c" {
		t.Errorf("trailing section = %q, want %q", tokens[2].Value.AsString(), " c")
	}
}

func TestInterpolationTracksParens(t *testing.T) {
	// The ")" inside the call is an ordinary paren; only the one matching
	// the "%(" ends the interpolated expression.
	got, rep := lexTypes(t, `"a %(f(1)) b"`)
	want := []TokenType{
		TokenInterpolation, TokenName, TokenLeftParen, TokenNumber,
		TokenRightParen, TokenString, TokenEOF,
	}
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics %v", rep.Diagnostics)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpolationNestingLimit(t *testing.T) {
	// Eight levels are allowed; the ninth reports an error.
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteString(`"%(`)
	}
	sb.WriteString("1")
	for i := 0; i < 9; i++ {
		sb.WriteString(`)"`)
	}

	_, rep := lexTypes(t, sb.String())
	if !reportedError(rep, "Interpolation may only nest 8 levels deep.") {
		t.Fatalf("missing nesting error, got %v", rep.Diagnostics)
	}
}

func TestRawStrings(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"single line", `"""x"""`, "x"},
		{"keeps quotes", `"""a"b"""`, `a"b`},
		{"keeps escapes", `"""a\nb"""`, `a\nb`},
		{"keeps interpolation syntax", `"""%(a)"""`, "%(a)"},
		{"trims newline lines", "\"\"\"\nabc\n\"\"\"", "abc"},
		{"trims indented last line", "\"\"\"\n  abc\n  \"\"\"", "  abc"},
		{"trims whitespace first line", "\"\"\"  \n  text\n  \"\"\"", "  text"},
		{"keeps interior blank lines", "\"\"\"\na\n\nb\n\"\"\"", "a\n\nb"},
		{"content on opening line kept", "\"\"\"a\nb\"\"\"", "a\nb"},
		{"empty", `""""""`, ""},
	}
	for _, tt := range tests {
		rep := &CollectReporter{}
		tokens := Tokenize("main", tt.source, rep)
		if len(rep.Diagnostics) != 0 {
			t.Errorf("%s: unexpected diagnostics %v", tt.name, rep.Diagnostics)
			continue
		}
		if tokens[0].Type != TokenString {
			t.Errorf("%s: got %s, want STRING", tt.name, tokens[0].Type)
			continue
		}
		if got := tokens[0].Value.AsString(); got != tt.want {
			t.Errorf("%s: value = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestUnterminatedRawString(t *testing.T) {
	_, rep := lexTypes(t, `"""abc`)
	if !reportedError(rep, "Unterminated raw string.") {
		t.Fatalf("missing error, got %v", rep.Diagnostics)
	}
}

func TestComments(t *testing.T) {
	tests := []struct {
		source string
		want   []TokenType
	}{
		{"// whole line\n1", []TokenType{TokenLine, TokenNumber, TokenEOF}},
		{"1 // trailing\n2", []TokenType{TokenNumber, TokenLine, TokenNumber, TokenEOF}},
		{"/* inline */ 1", []TokenType{TokenNumber, TokenEOF}},

		// Block comments nest.
		{"/* a /* b */ c */ 1", []TokenType{TokenNumber, TokenEOF}},
	}
	for _, tt := range tests {
		got, rep := lexTypes(t, tt.source)
		if len(rep.Diagnostics) != 0 {
			t.Errorf("%q: unexpected diagnostics %v", tt.source, rep.Diagnostics)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q: token mismatch (-want +got):\n%s", tt.source, diff)
		}
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	_, rep := lexTypes(t, "/* a /* b */")
	if !reportedError(rep, "Unterminated block comment.") {
		t.Fatalf("missing error, got %v", rep.Diagnostics)
	}
}

func TestKeywordsAndNames(t *testing.T) {
	got, _ := lexTypes(t, "class classy construct is island")
	want := []TokenType{TokenClass, TokenName, TokenConstruct, TokenIs, TokenName, TokenEOF}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldTokens(t *testing.T) {
	rep := &CollectReporter{}
	tokens := Tokenize("main", "_a __b _", rep)
	want := []TokenType{TokenField, TokenStaticField, TokenField, TokenEOF}
	got := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		got[i] = tok.Type
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
	if tokens[0].Lexeme != "_a" || tokens[1].Lexeme != "__b" {
		t.Errorf("lexemes = %q, %q; want _a, __b", tokens[0].Lexeme, tokens[1].Lexeme)
	}
}

func TestLineTokens(t *testing.T) {
	rep := &CollectReporter{}
	tokens := Tokenize("main", "a\n\nb", rep)
	want := []TokenType{TokenName, TokenLine, TokenLine, TokenName, TokenEOF}
	got := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		got[i] = tok.Type
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}

	// A newline token is attributed to the line it ends.
	if tokens[1].Line != 1 {
		t.Errorf("first newline on line %d, want 1", tokens[1].Line)
	}
	if tokens[3].Line != 3 {
		t.Errorf("b on line %d, want 3", tokens[3].Line)
	}
}

func TestShebang(t *testing.T) {
	got, rep := lexTypes(t, "#!/usr/bin/env lark\nSystem")
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics %v", rep.Diagnostics)
	}
	want := []TokenType{TokenLine, TokenName, TokenEOF}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestAttributeHash(t *testing.T) {
	// Not a shebang: '#' later in the file is the attribute marker.
	got, _ := lexTypes(t, "#key")
	want := []TokenType{TokenHash, TokenName, TokenEOF}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidCharacter(t *testing.T) {
	_, rep := lexTypes(t, "var a = $")
	if !reportedError(rep, "Invalid character '$'.") {
		t.Fatalf("missing error, got %v", rep.Diagnostics)
	}
}

func TestByteOrderMarkSkipped(t *testing.T) {
	got, rep := lexTypes(t, "\xEF\xBB\xBF1")
	if len(rep.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics %v", rep.Diagnostics)
	}
	want := []TokenType{TokenNumber, TokenEOF}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}
