// Package bytecode defines the instruction set and the compiled function
// artifact the compiler produces for the virtual machine.
package bytecode

import "fmt"

// Op is a bytecode instruction.
type Op byte

const (
	// OpConstant pushes a constant: <index:u16>.
	OpConstant Op = iota

	// Push literals.
	OpNull
	OpFalse
	OpTrue

	// Locals are addressed by frame slot: <slot:u8>.
	OpLoadLocal
	OpStoreLocal

	// Upvalues are addressed by descriptor index: <index:u8>.
	OpLoadUpvalue
	OpStoreUpvalue

	// Module variables are addressed by module symbol: <symbol:u16>.
	OpLoadModuleVar
	OpStoreModuleVar

	// Fields of the receiver in the current method: <field:u8>.
	OpLoadFieldThis
	OpStoreFieldThis

	// Fields of an instance on the stack: <field:u8>.
	OpLoadField
	OpStoreField

	OpPop

	// OpCall invokes a method on the receiver below argc arguments:
	// <argc:u8> <symbol:u16>.
	OpCall

	// OpSuper is OpCall dispatched on the superclass, with a constant slot
	// the VM caches the superclass in: <argc:u8> <symbol:u16> <const:u16>.
	OpSuper

	// Forward jump: <offset:u16>.
	OpJump

	// Backward jump: <offset:u16>, subtracted from the instruction pointer.
	OpLoop

	// Pop the condition; jump forward if it is falsy: <offset:u16>.
	OpJumpIf

	// Short-circuit operators: peek the condition; jump if it decides the
	// result, otherwise pop it: <offset:u16>.
	OpAnd
	OpOr

	// Hoist the top local into a heap cell before its scope exits.
	OpCloseUpvalue

	OpReturn

	// OpClosure creates a closure over a function constant:
	// <const:u16>, then one <isLocal:u8> <index:u8> pair per upvalue.
	OpClosure

	// Allocate an instance for a constructor; the initializer call follows.
	OpConstruct
	OpForeignConstruct

	// OpClass pops a superclass and name and pushes a class: <fields:u8>.
	OpClass
	OpForeignClass

	// Bind a method (popped) to a class (peeked): <symbol:u16>.
	OpMethodInstance
	OpMethodStatic

	// OpEndClass pops the class and its attribute map and attaches them.
	OpEndClass

	// OpImportModule pushes the imported module's result: <const:u16>.
	OpImportModule

	// OpImportVariable pushes one variable from the last imported module:
	// <const:u16>.
	OpImportVariable

	// OpEndModule pushes the implicit result of executing a module body.
	OpEndModule

	// OpEnd terminates a function body. Never executed.
	OpEnd
)

// opInfo carries the disassembly name, operand byte widths, and the stack
// effect of executing the instruction. Variable-effect instructions (calls,
// closures) hold their fixed part here; the compiler's emit helpers account
// for the argument-dependent remainder.
type opInfo struct {
	name     string
	operands []int // widths in bytes
	effect   int
}

var ops = [...]opInfo{
	OpConstant:         {"CONSTANT", []int{2}, 1},
	OpNull:             {"NULL", nil, 1},
	OpFalse:            {"FALSE", nil, 1},
	OpTrue:             {"TRUE", nil, 1},
	OpLoadLocal:        {"LOAD_LOCAL", []int{1}, 1},
	OpStoreLocal:       {"STORE_LOCAL", []int{1}, 0},
	OpLoadUpvalue:      {"LOAD_UPVALUE", []int{1}, 1},
	OpStoreUpvalue:     {"STORE_UPVALUE", []int{1}, 0},
	OpLoadModuleVar:    {"LOAD_MODULE_VAR", []int{2}, 1},
	OpStoreModuleVar:   {"STORE_MODULE_VAR", []int{2}, 0},
	OpLoadFieldThis:    {"LOAD_FIELD_THIS", []int{1}, 1},
	OpStoreFieldThis:   {"STORE_FIELD_THIS", []int{1}, 0},
	OpLoadField:        {"LOAD_FIELD", []int{1}, 0},
	OpStoreField:       {"STORE_FIELD", []int{1}, -1},
	OpPop:              {"POP", nil, -1},
	OpCall:             {"CALL", []int{1, 2}, 0},
	OpSuper:            {"SUPER", []int{1, 2, 2}, 0},
	OpJump:             {"JUMP", []int{2}, 0},
	OpLoop:             {"LOOP", []int{2}, 0},
	OpJumpIf:           {"JUMP_IF", []int{2}, -1},
	OpAnd:              {"AND", []int{2}, -1},
	OpOr:               {"OR", []int{2}, -1},
	OpCloseUpvalue:     {"CLOSE_UPVALUE", nil, -1},
	OpReturn:           {"RETURN", nil, 0},
	OpClosure:          {"CLOSURE", []int{2}, 1},
	OpConstruct:        {"CONSTRUCT", nil, 0},
	OpForeignConstruct: {"FOREIGN_CONSTRUCT", nil, 0},
	OpClass:            {"CLASS", []int{1}, -1},
	OpForeignClass:     {"FOREIGN_CLASS", nil, -1},
	OpMethodInstance:   {"METHOD_INSTANCE", []int{2}, -2},
	OpMethodStatic:     {"METHOD_STATIC", []int{2}, -2},
	OpEndClass:         {"END_CLASS", nil, -2},
	OpImportModule:     {"IMPORT_MODULE", []int{2}, 1},
	OpImportVariable:   {"IMPORT_VARIABLE", []int{2}, 1},
	OpEndModule:        {"END_MODULE", nil, 1},
	OpEnd:              {"END", nil, 0},
}

// Name returns the mnemonic for the opcode.
func (op Op) Name() string {
	if int(op) < len(ops) {
		return ops[op].name
	}
	return fmt.Sprintf("OP_%d", byte(op))
}

// StackEffect returns the fixed stack effect of the opcode.
func (op Op) StackEffect() int {
	if int(op) < len(ops) {
		return ops[op].effect
	}
	return 0
}
