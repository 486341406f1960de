package compiler

import "testing"

func TestSignatureString(t *testing.T) {
	tests := []struct {
		sig  Signature
		want string
	}{
		{Signature{Name: "foo", Kind: SigGetter}, "foo"},
		{Signature{Name: "foo", Kind: SigSetter, Arity: 1}, "foo=(_)"},
		{Signature{Name: "foo", Kind: SigMethod, Arity: 0}, "foo()"},
		{Signature{Name: "foo", Kind: SigMethod, Arity: 1}, "foo(_)"},
		{Signature{Name: "foo", Kind: SigMethod, Arity: 3}, "foo(_,_,_)"},
		{Signature{Kind: SigSubscript, Arity: 1}, "[_]"},
		{Signature{Kind: SigSubscript, Arity: 2}, "[_,_]"},
		{Signature{Kind: SigSubscriptSetter, Arity: 2}, "[_]=(_)"},
		{Signature{Kind: SigSubscriptSetter, Arity: 3}, "[_,_]=(_)"},
		{Signature{Name: "new", Kind: SigInitializer, Arity: 0}, "init new()"},
		{Signature{Name: "new", Kind: SigInitializer, Arity: 2}, "init new(_,_)"},
		{Signature{Name: "+", Kind: SigMethod, Arity: 1}, "+(_)"},
	}
	for _, tt := range tests {
		if got := tt.sig.String(); got != tt.want {
			t.Errorf("%+v: got %q, want %q", tt.sig, got, tt.want)
		}
	}
}
