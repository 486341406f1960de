package compiler

import "strings"

// SignatureKind classifies how a class member is invoked. An initializer is
// deliberately distinct from an ordinary method: its canonical symbol can
// only be produced by the construction path, so an initializer cannot be
// called as a plain method from outside the class.
type SignatureKind int

const (
	SigGetter SignatureKind = iota
	SigSetter
	SigMethod
	SigSubscript
	SigSubscriptSetter
	SigInitializer
)

// Signature is the canonical name+kind+arity encoding of a callable member.
// Two members with the same name but different kind or arity dispatch
// through different symbols.
type Signature struct {
	Name  string
	Kind  SignatureKind
	Arity int
}

// parameterList returns "_,_,..." with n placeholders.
func parameterList(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("_,", n-1) + "_"
}

// String returns the canonical symbol for the signature, e.g.:
//
//	foo          getter
//	foo=(_)      setter
//	foo(_,_)     method with two parameters
//	[_]          subscript getter
//	[_,_]=(_)    subscript setter
//	init foo(_)  initializer
func (s Signature) String() string {
	var sb strings.Builder
	switch s.Kind {
	case SigGetter:
		sb.WriteString(s.Name)
	case SigSetter:
		sb.WriteString(s.Name)
		sb.WriteString("=(_)")
	case SigMethod:
		sb.WriteString(s.Name)
		sb.WriteByte('(')
		sb.WriteString(parameterList(s.Arity))
		sb.WriteByte(')')
	case SigSubscript:
		sb.WriteByte('[')
		sb.WriteString(parameterList(s.Arity))
		sb.WriteByte(']')
	case SigSubscriptSetter:
		// The last parameter is the assigned value.
		sb.WriteByte('[')
		sb.WriteString(parameterList(s.Arity - 1))
		sb.WriteString("]=(_)")
	case SigInitializer:
		sb.WriteString("init ")
		sb.WriteString(s.Name)
		sb.WriteByte('(')
		sb.WriteString(parameterList(s.Arity))
		sb.WriteByte(')')
	}
	return sb.String()
}
