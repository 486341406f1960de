package compiler

import (
	"fmt"

	"github.com/larklang/lark/bytecode"
	"github.com/larklang/lark/value"
)

// Parser owns the token window and the per-module state shared by the whole
// chain of compiler frames: the module being compiled into, the global
// method-name table, and error reporting. Grammar productions look at
// previous (the token just consumed), current (the token about to be
// consumed) and next (one token of lookahead past that).
type Parser struct {
	lexer *Lexer

	module     *value.Module
	moduleName string

	// Method signatures are interned here so that a call site and a method
	// definition with the same canonical signature share one symbol. The
	// table is shared across modules by the embedding VM.
	methodNames *value.SymbolTable

	previous Token
	current  Token
	next     Token

	reporter    Reporter
	printErrors bool

	errored bool
}

// nextToken shifts the window forward by one token.
func (p *Parser) nextToken() {
	p.previous = p.current
	p.current = p.next

	// Keep handing out the EOF token once the source is exhausted.
	if p.next.Type == TokenEOF && p.current.Type == TokenEOF {
		return
	}
	p.next = p.lexer.NextToken()
}

func (p *Parser) hasError() bool {
	return p.errored || p.lexer.HasError()
}

func (p *Parser) reportError(line int, msg string) {
	p.errored = true
	if !p.printErrors || p.reporter == nil {
		return
	}
	p.reporter.Report(Diagnostic{Module: p.moduleName, Line: line, Kind: DiagCompile, Message: msg})
}

// constKey identifies an internable constant. Only immutable value kinds
// participate in constant-pool dedup; object constants (nested functions)
// always get a fresh slot.
type constKey struct {
	kind value.Kind
	b    bool
	num  float64
	str  string
}

func internKey(v value.Value) (constKey, bool) {
	switch v.Kind() {
	case value.KindNull:
		return constKey{kind: value.KindNull}, true
	case value.KindBool:
		return constKey{kind: value.KindBool, b: v.AsBool()}, true
	case value.KindNum:
		return constKey{kind: value.KindNum, num: v.AsNum()}, true
	case value.KindString:
		return constKey{kind: value.KindString, str: v.AsString()}, true
	}
	return constKey{}, false
}

// Compiler compiles one function: either the module's top-level code, a
// method body, or a function literal. Nested functions get their own frame
// linked to the enclosing one through parent, which is how upvalue capture
// walks outward.
type Compiler struct {
	parser *Parser
	parent *Compiler

	locals    [maxLocals]local
	numLocals int

	upvalues [maxUpvalues]upvalue

	// The current block-scope nesting. -1 for the module's top level, where
	// declarations go to module scope instead of local slots; 0 for a
	// function's own parameter/body scope.
	scopeDepth int

	// The number of stack slots in use right now, tracked instruction by
	// instruction to compute the function's MaxSlots watermark.
	numSlots int

	// The innermost loop being compiled, or nil.
	loop *loop

	// The class whose body is being compiled, or nil.
	enclosingClass *classInfo

	fn        *bytecode.Fn
	constants map[constKey]int

	isInitializer bool

	// Attributes seen since the last class or method, waiting to attach to
	// whichever comes next. Only runtime-visible (#!) attributes are stored;
	// numAttributes counts every parsed attribute so misplacement can be
	// reported even for discarded ones.
	attributes    *value.Map
	numAttributes int
}

// newCompiler starts a frame. Slot zero is reserved: it holds the receiver
// in a method, and is kept unnamed (hence unresolvable) in plain functions
// so a closure body reaches the enclosing method's receiver as an upvalue.
func newCompiler(parser *Parser, parent *Compiler, isMethod bool) *Compiler {
	c := &Compiler{
		parser:     parser,
		parent:     parent,
		numLocals:  1,
		scopeDepth: 0,
		attributes: &value.Map{},
	}
	if isMethod {
		c.locals[0].name = "this"
	}
	c.locals[0].depth = -1
	if parent == nil {
		c.scopeDepth = -1
	}
	c.numSlots = c.numLocals
	c.fn = bytecode.NewFn(parser.module.Name, c.numSlots)
	return c
}

// ---------------------------------------------------------------------------
// Errors

// error reports a compile error at the just-consumed token.
func (c *Compiler) error(msg string) {
	tok := c.parser.previous

	// If the problem token is an error token, the lexer already reported it.
	if tok.Type == TokenErr {
		c.parser.errored = true
		return
	}

	switch tok.Type {
	case TokenLine:
		c.parser.reportError(tok.Line, "at newline: "+msg)
	case TokenEOF:
		c.parser.reportError(tok.Line, "at end of file: "+msg)
	default:
		c.parser.reportError(tok.Line, fmt.Sprintf("at '%s': %s", tok.Lexeme, msg))
	}
}

func (c *Compiler) errorf(format string, args ...any) {
	c.error(fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Token consumption

func (c *Compiler) peek() TokenType     { return c.parser.current.Type }
func (c *Compiler) peekNext() TokenType { return c.parser.next.Type }

// match consumes the current token if it has the given type.
func (c *Compiler) match(typ TokenType) bool {
	if c.peek() != typ {
		return false
	}
	c.parser.nextToken()
	return true
}

// consume requires the current token to have the given type.
func (c *Compiler) consume(typ TokenType, errorMessage string) {
	c.parser.nextToken()
	if c.parser.previous.Type != typ {
		c.error(errorMessage)

		// If the next token is the wanted one, assume the current one is
		// spurious and skip it to limit cascaded errors.
		if c.parser.current.Type == typ {
			c.parser.nextToken()
		}
	}
}

// matchLine consumes the current newline and any further blank lines.
func (c *Compiler) matchLine() bool {
	if !c.match(TokenLine) {
		return false
	}
	for c.match(TokenLine) {
	}
	return true
}

// ignoreNewlines skips over newlines where the grammar treats them as
// insignificant.
func (c *Compiler) ignoreNewlines() {
	c.matchLine()
}

// consumeLine requires a newline terminator, then skips blank lines.
func (c *Compiler) consumeLine(errorMessage string) {
	c.consume(TokenLine, errorMessage)
	c.ignoreNewlines()
}

// ---------------------------------------------------------------------------
// Emission

// emitByte appends one raw byte and returns its offset. It does not touch
// the slot count; instruction opcodes go through emitOp.
func (c *Compiler) emitByte(b byte) int {
	return c.fn.AppendByte(b, c.parser.previous.Line)
}

func (c *Compiler) adjustSlots(effect int) {
	c.numSlots += effect
	if c.numSlots > c.fn.MaxSlots {
		c.fn.MaxSlots = c.numSlots
	}
}

// emitOp appends an opcode and applies its stack effect.
func (c *Compiler) emitOp(op bytecode.Op) int {
	offset := c.emitByte(byte(op))
	c.adjustSlots(op.StackEffect())
	return offset
}

func (c *Compiler) emitShort(v int) {
	c.emitByte(byte((v >> 8) & 0xff))
	c.emitByte(byte(v & 0xff))
}

// emitByteArg emits an opcode with one byte operand and returns the
// operand's offset.
func (c *Compiler) emitByteArg(op bytecode.Op, arg int) int {
	c.emitOp(op)
	return c.emitByte(byte(arg))
}

func (c *Compiler) emitShortArg(op bytecode.Op, arg int) {
	c.emitOp(op)
	c.emitShort(arg)
}

// emitJump emits a forward jump with a placeholder distance and returns the
// offset of the operand to patch.
func (c *Compiler) emitJump(op bytecode.Op) int {
	c.emitOp(op)
	c.emitByte(0xff)
	return c.emitByte(0xff) - 1
}

// patchJump resolves a forward jump to land on the next emitted
// instruction.
func (c *Compiler) patchJump(offset int) {
	// -2 adjusts for the operand itself, which is read before jumping.
	jump := len(c.fn.Code) - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	c.fn.PatchShort(offset, jump)
}

// addConstant interns a value into the function's constant pool and returns
// its slot.
func (c *Compiler) addConstant(v value.Value) int {
	if c.parser.hasError() {
		return -1
	}

	key, internable := internKey(v)
	if internable {
		if c.constants == nil {
			c.constants = make(map[constKey]int)
		} else if existing, ok := c.constants[key]; ok {
			return existing
		}
	}

	if len(c.fn.Constants) >= maxConstants {
		c.errorf("A function may only contain %d unique constants.", maxConstants)
		return len(c.fn.Constants) - 1
	}
	c.fn.Constants = append(c.fn.Constants, v)
	slot := len(c.fn.Constants) - 1
	if internable {
		c.constants[key] = slot
	}
	return slot
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitShortArg(bytecode.OpConstant, c.addConstant(v))
}

// ---------------------------------------------------------------------------
// Method symbols and calls

func (c *Compiler) methodSymbol(name string) int {
	return c.parser.methodNames.Ensure(name)
}

// callMethod emits a call to the named method with the given number of
// arguments, assuming the receiver and arguments are on the stack.
func (c *Compiler) callMethod(numArgs int, name string) {
	symbol := c.methodSymbol(name)
	c.emitOp(bytecode.OpCall)
	c.emitByte(byte(numArgs))
	c.emitShort(symbol)
	// The receiver and arguments are replaced by the result.
	c.adjustSlots(-numArgs)
}

// callSignature emits a call or super call for the given signature.
func (c *Compiler) callSignature(op bytecode.Op, sig Signature) {
	symbol := c.methodSymbol(sig.String())
	c.emitOp(op)
	c.emitByte(byte(sig.Arity))
	c.emitShort(symbol)
	c.adjustSlots(-sig.Arity)

	if op == bytecode.OpSuper {
		// A super call's static superclass is filled in when the method is
		// bound; reserve the constant slot it uses.
		c.emitShort(c.addConstant(value.Null()))
	}
}

// ---------------------------------------------------------------------------
// Scopes and variables

// pushScope opens a new block scope.
func (c *Compiler) pushScope() {
	c.scopeDepth++
}

// discardLocals emits code to release the locals at depth or deeper and
// returns how many there were. Captured locals get their upvalues closed
// instead of being popped.
func (c *Compiler) discardLocals(depth int) int {
	local := c.numLocals - 1
	for local >= 0 && c.locals[local].depth >= depth {
		// Raw bytes, not emitOp: break and continue jump out from the middle
		// of a scope, so the locals stay live on the paths that do not take
		// the jump and the slot count must not change.
		if c.locals[local].isUpvalue {
			c.emitByte(byte(bytecode.OpCloseUpvalue))
		} else {
			c.emitByte(byte(bytecode.OpPop))
		}
		local--
	}
	return c.numLocals - local - 1
}

// popScope closes the current block scope and discards its locals.
func (c *Compiler) popScope() {
	popped := c.discardLocals(c.scopeDepth)
	c.numLocals -= popped
	c.numSlots -= popped
	c.scopeDepth--
}

func (c *Compiler) addLocal(name string) int {
	l := &c.locals[c.numLocals]
	l.name = name
	l.depth = c.scopeDepth
	l.isUpvalue = false
	c.numLocals++
	return c.numLocals - 1
}

// declareVariable declares a variable named by the given token, or by the
// previously consumed token when tok is nil. At module level the
// declaration goes to the module; inside any block it becomes a local.
func (c *Compiler) declareVariable(tok *Token) int {
	if tok == nil {
		tok = &c.parser.previous
	}
	if len(tok.Lexeme) > maxVariableName {
		c.errorf("Variable name cannot be longer than %d characters.", maxVariableName)
	}

	if c.scopeDepth == -1 {
		symbol, result, useLine := c.parser.module.DefineVariable(tok.Lexeme, value.Null())
		switch result {
		case value.DefineAlreadyDefined:
			c.error("Module variable is already defined.")
		case value.DefineTooMany:
			c.error("Too many module variables defined.")
		case value.DefineUsedBeforeDefined:
			c.errorf("Variable '%s' referenced before this definition (first use at line %d).",
				tok.Lexeme, useLine)
		}
		return symbol
	}

	// See if a local with the name is already declared in this scope.
	for i := c.numLocals - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == tok.Lexeme {
			c.error("Variable is already declared in this scope.")
			return i
		}
	}

	if c.numLocals == maxLocals {
		c.errorf("Cannot declare more than %d variables in one scope.", maxLocals)
		return -1
	}
	return c.addLocal(tok.Lexeme)
}

// declareNamedVariable consumes a name token and declares it.
func (c *Compiler) declareNamedVariable() int {
	c.consume(TokenName, "Expect variable name.")
	return c.declareVariable(nil)
}

// defineVariable stores the value on top of the stack into the declared
// variable. Locals simply live in their slot; module variables get an
// explicit store.
func (c *Compiler) defineVariable(symbol int) {
	if c.scopeDepth >= 0 {
		return
	}
	c.emitShortArg(bytecode.OpStoreModuleVar, symbol)
	c.emitOp(bytecode.OpPop)
}

// scope identifies where a resolved variable lives.
type scope int

const (
	scopeLocal scope = iota
	scopeUpvalue
	scopeModule
)

// variable is a resolved reference: a slot index and which table the index
// is into. index is -1 when resolution failed.
type variable struct {
	index int
	scope scope
}

// resolveLocal looks the name up among the frame's own locals, innermost
// declaration first.
func (c *Compiler) resolveLocal(name string) int {
	for i := c.numLocals - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

// addUpvalue records that the function closes over a variable of its parent
// and returns the upvalue's index, reusing an existing descriptor for a
// repeated capture.
func (c *Compiler) addUpvalue(isLocal bool, index int) int {
	for i := 0; i < c.fn.NumUpvalues; i++ {
		uv := &c.upvalues[i]
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}

	if c.fn.NumUpvalues == maxUpvalues {
		c.errorf("A function may only close over %d variables.", maxUpvalues)
		return -1
	}
	c.upvalues[c.fn.NumUpvalues] = upvalue{isLocal: isLocal, index: index}
	c.fn.Upvalues = append(c.fn.Upvalues, bytecode.UpvalueDesc{IsLocal: isLocal, Index: index})
	c.fn.NumUpvalues++
	return c.fn.NumUpvalues - 1
}

// findUpvalue resolves a name against the enclosing frames, capturing it
// through each intermediate function. Returns the upvalue index in this
// frame, or -1 if no enclosing frame declares the name.
func (c *Compiler) findUpvalue(name string) int {
	if c.parent == nil {
		return -1
	}

	if local := c.parent.resolveLocal(name); local != -1 {
		// Mark it so the parent closes the upvalue when the local goes out
		// of scope.
		c.parent.locals[local].isUpvalue = true
		return c.addUpvalue(true, local)
	}

	if upvalue := c.parent.findUpvalue(name); upvalue != -1 {
		return c.addUpvalue(false, upvalue)
	}
	return -1
}

// resolveNonmodule resolves a name against locals and upvalues only.
func (c *Compiler) resolveNonmodule(name string) variable {
	if index := c.resolveLocal(name); index != -1 {
		return variable{index: index, scope: scopeLocal}
	}
	if index := c.findUpvalue(name); index != -1 {
		return variable{index: index, scope: scopeUpvalue}
	}
	return variable{index: -1, scope: scopeLocal}
}

// resolveName resolves a name anywhere it can be declared.
func (c *Compiler) resolveName(name string) variable {
	v := c.resolveNonmodule(name)
	if v.index != -1 {
		return v
	}
	return variable{index: c.parser.module.FindVariable(name), scope: scopeModule}
}

func (c *Compiler) loadVariable(v variable) {
	if v.index == -1 {
		return
	}
	switch v.scope {
	case scopeLocal:
		c.emitByteArg(bytecode.OpLoadLocal, v.index)
	case scopeUpvalue:
		c.emitByteArg(bytecode.OpLoadUpvalue, v.index)
	case scopeModule:
		c.emitShortArg(bytecode.OpLoadModuleVar, v.index)
	}
}

// loadThis pushes the receiver of the surrounding method.
func (c *Compiler) loadThis() {
	c.loadVariable(c.resolveNonmodule("this"))
}

// loadCoreVariable pushes one of the implicitly-imported core module
// variables, e.g. the List class for a list literal.
func (c *Compiler) loadCoreVariable(name string) {
	symbol := c.parser.module.FindVariable(name)
	if symbol == -1 {
		symbol = c.parser.module.DeclareVariable(name, c.parser.previous.Line)
		if symbol == -1 {
			c.error("Too many module variables defined.")
			return
		}
	}
	c.emitShortArg(bytecode.OpLoadModuleVar, symbol)
}

// getEnclosingClassCompiler walks the frame chain outward to the compiler
// whose class body encloses this function, or nil outside any class.
func (c *Compiler) getEnclosingClassCompiler() *Compiler {
	for f := c; f != nil; f = f.parent {
		if f.enclosingClass != nil {
			return f
		}
	}
	return nil
}

func (c *Compiler) getEnclosingClass() *classInfo {
	if f := c.getEnclosingClassCompiler(); f != nil {
		return f.enclosingClass
	}
	return nil
}

// ---------------------------------------------------------------------------
// Finishing a function

// endCompiler finishes the function, wires it into the parent as a closure
// if there is one, and returns it. Returns nil if any error was reported.
func (c *Compiler) endCompiler(debugName string) *bytecode.Fn {
	if c.parser.hasError() {
		return nil
	}

	// An implicit return so every path ends the function.
	c.emitOp(bytecode.OpEnd)
	c.fn.BindName(debugName)

	if c.parent != nil {
		constant := c.parent.addConstant(value.Obj(c.fn))

		// The function is wrapped in a closure at the site where it appears,
		// followed by one (isLocal, index) pair per captured variable.
		c.parent.emitShortArg(bytecode.OpClosure, constant)
		for i := 0; i < c.fn.NumUpvalues; i++ {
			uv := c.upvalues[i]
			local := byte(0)
			if uv.isLocal {
				local = 1
			}
			c.parent.emitByte(local)
			c.parent.emitByte(byte(uv.index))
		}
	}
	return c.fn
}

// ---------------------------------------------------------------------------
// Entry points

// Config carries the inputs of one compilation. Zero values are usable: a
// nil Module compiles into a fresh module pre-seeded with the core class
// names, and a nil MethodNames gets a private table.
type Config struct {
	// Module to compile into. Top-level variables are merged into it.
	Module *value.Module

	// Name used in diagnostics. Defaults to the module's name, or
	// "(script)".
	ModuleName string

	// Shared method-signature intern table.
	MethodNames *value.SymbolTable

	Reporter Reporter

	// When false, diagnostics are suppressed; Compile still returns nil on
	// error.
	PrintErrors bool

	// Compile a single expression instead of a sequence of definitions.
	IsExpression bool
}

// coreClassNames are the variables every module can reference without
// importing anything.
var coreClassNames = []string{
	"Object", "Class", "Bool", "Num", "String", "Range",
	"List", "Map", "Null", "Fn", "Sequence", "Fiber", "System",
	"ClassAttributes",
}

// NewCoreModule returns a module with the implicit core class names
// pre-defined, the environment a standalone compile runs against.
func NewCoreModule(name string) *value.Module {
	m := value.NewModule(name)
	for _, n := range coreClassNames {
		m.DefineVariable(n, value.Null())
	}
	return m
}

// Compile compiles source into a function ready to be called with zero
// arguments. Returns nil if any lexical or compile error was reported.
func Compile(cfg Config, source string) *bytecode.Fn {
	module := cfg.Module
	name := cfg.ModuleName
	if module == nil {
		if name == "" {
			name = "(script)"
		}
		module = NewCoreModule(name)
	} else if name == "" {
		name = module.Name
	}
	methodNames := cfg.MethodNames
	if methodNames == nil {
		methodNames = value.NewSymbolTable()
	}

	p := &Parser{
		lexer:       NewLexer(name, source, cfg.Reporter, cfg.PrintErrors),
		module:      module,
		moduleName:  name,
		methodNames: methodNames,
		reporter:    cfg.Reporter,
		printErrors: cfg.PrintErrors,
	}

	// Prime the window: one call fills next, the second shifts it into
	// current.
	p.nextToken()
	p.nextToken()

	numExisting := module.NumVariables()

	c := newCompiler(p, nil, false)
	c.ignoreNewlines()

	if cfg.IsExpression {
		c.expression()
		c.consume(TokenEOF, "Expect end of expression.")
	} else {
		for !c.match(TokenEOF) {
			c.definition()

			// A definition is terminated by a newline unless it is the last
			// thing in the file.
			if !c.matchLine() {
				c.consume(TokenEOF, "Expect end of file.")
				break
			}
		}
		c.emitOp(bytecode.OpEndModule)
	}
	c.emitOp(bytecode.OpReturn)

	// Any variable that was implicitly declared during this compile and
	// never defined is a forward reference to nothing.
	for i := numExisting; i < module.NumVariables(); i++ {
		if line := module.ImplicitUseLine(i); line != -1 {
			p.previous = Token{
				Type:   TokenName,
				Lexeme: module.VariableName(i),
				Line:   line,
			}
			c.error("Variable is used but not defined.")
		}
	}

	return c.endCompiler("(script)")
}
