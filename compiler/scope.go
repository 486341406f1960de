package compiler

import "github.com/larklang/lark/value"

// Hard limits that are load-bearing because they are encoded in the
// instruction format: locals and upvalues are addressed by one byte,
// constants, module variables and jump distances by two. Exceeding any of
// them is a compile error, never a panic.
const (
	// The maximum number of local variables (spanning block scopes) that
	// can be in scope at once in a function, method or top-level chunk.
	maxLocals = 256

	// The maximum number of variables a function can close over.
	maxUpvalues = 256

	// The maximum number of fields a class can have, inherited fields
	// included. One below 256 so the field count fits a byte alongside a
	// superclass sentinel.
	maxFields = 255

	// The maximum number of distinct constants in one function.
	maxConstants = 1 << 16

	// The maximum distance a jump instruction can move the instruction
	// pointer.
	maxJump = 1 << 16

	// The maximum number of parameters of a method, bounded by the
	// signature encoding.
	maxParameters = 16

	// The maximum length of a variable or method name.
	maxVariableName = 64
)

// local is one declared local variable in a compiler frame. Its slot index
// is its position in the frame's locals table, which is also its VM stack
// slot relative to the frame base.
type local struct {
	name string

	// The block-scope depth the local was declared at, or -1 before its
	// initializer has run.
	depth int

	// Whether the local is captured by a nested function. Captured locals
	// are hoisted into heap cells instead of popped when their scope exits.
	isUpvalue bool
}

// upvalue describes one captured variable: either a local of the
// immediately enclosing frame, or one of that frame's own upvalues.
type upvalue struct {
	isLocal bool
	index   int
}

// loop tracks the state needed to compile one active loop.
type loop struct {
	// Offset of the instruction the loop condition re-tests at, jumped to
	// by continue.
	start int

	// Offset of the operand of the conditional exit jump, patched once the
	// end of the loop is known. -1 when the loop has no condition.
	exitJump int

	// Offsets of the jump operands emitted by break statements in the
	// body. All of them patch to the end of the loop. A body may contain
	// any number of breaks, so this is a list rather than a single site.
	breaks []int

	// Offset of the first instruction of the body.
	body int

	// Depth of the scope the loop itself sits in. break and continue
	// unwind any scopes nested deeper than this before jumping.
	scopeDepth int

	enclosing *loop
}

// classInfo bookkeeps one class while its body is compiled. It is created
// at the `{` of the body and discarded at the `}`.
type classInfo struct {
	name string

	// Attributes attached to the class declaration itself, and per-method
	// attributes keyed by canonical signature.
	classAttributes  *value.Map
	methodAttributes *value.Map

	// Symbol table of the fields declared (by use) in the class.
	fields *value.SymbolTable

	// Method symbols already declared, to detect duplicate definitions.
	methods       []int
	staticMethods []int

	isForeign bool

	// True while a static method or static getter/setter is compiled.
	inStatic bool

	// The signature of the method currently being compiled, used by
	// unqualified super calls.
	signature *Signature
}
