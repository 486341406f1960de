package compiler

import (
	"github.com/larklang/lark/bytecode"
	"github.com/larklang/lark/value"
)

// precedence orders the binding power of operators, tightest last. An infix
// operator at precedence P parses its right operand at P+1, making every
// binary operator left-associative; the conditional and range operators
// deviate by re-entering at their own level.
type precedence int

const (
	precNone precedence = iota
	precLowest
	precAssignment  // =
	precConditional // ?:
	precLogicalOr   // ||
	precLogicalAnd  // &&
	precEquality    // == !=
	precIs          // is
	precComparison  // < > <= >=
	precBitwiseOr   // |
	precBitwiseXor  // ^
	precBitwiseAnd  // &
	precShift       // << >>
	precRange       // .. ...
	precTerm        // + -
	precFactor      // * / %
	precUnary       // unary - ! ~
	precCall        // . () []
	precPrimary
)

// infixPrecedence is the binding power of a token in infix position.
// precNone marks tokens that cannot continue an expression, which is what
// ends precedence climbing.
var infixPrecedence = [...]precedence{
	TokenLeftBracket: precCall,
	TokenDot:         precCall,
	TokenDotDot:      precRange,
	TokenDotDotDot:   precRange,
	TokenStar:        precFactor,
	TokenSlash:       precFactor,
	TokenPercent:     precFactor,
	TokenPlus:        precTerm,
	TokenMinus:       precTerm,
	TokenLtLt:        precShift,
	TokenGtGt:        precShift,
	TokenPipe:        precBitwiseOr,
	TokenPipePipe:    precLogicalOr,
	TokenCaret:       precBitwiseXor,
	TokenAmp:         precBitwiseAnd,
	TokenAmpAmp:      precLogicalAnd,
	TokenQuestion:    precAssignment,
	TokenLt:          precComparison,
	TokenGt:          precComparison,
	TokenLtEq:        precComparison,
	TokenGtEq:        precComparison,
	TokenEqEq:        precEquality,
	TokenBangEq:      precEquality,
	TokenIs:          precIs,

	TokenEOF: precNone, // size the array over the whole token range
}

// operatorNames maps operator tokens to the method name they dispatch to.
// Operators are ordinary method calls on their left operand.
var operatorNames = [...]string{
	TokenDotDot:    "..",
	TokenDotDotDot: "...",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenPercent:   "%",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenLtLt:      "<<",
	TokenGtGt:      ">>",
	TokenPipe:      "|",
	TokenCaret:     "^",
	TokenAmp:       "&",
	TokenBang:      "!",
	TokenTilde:     "~",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLtEq:      "<=",
	TokenGtEq:      ">=",
	TokenEqEq:      "==",
	TokenBangEq:    "!=",
	TokenIs:        "is",

	TokenEOF: "",
}

// parsePrecedence compiles one expression, consuming operators whose
// binding power is at least prec. Assignment is only allowed when the
// expression is parsed loosely enough that the target cannot be an operand
// of something else.
func (c *Compiler) parsePrecedence(prec precedence) {
	c.parser.nextToken()
	canAssign := prec <= precConditional
	if !c.prefixExpression(canAssign) {
		c.error("Expected expression.")
		return
	}

	for prec <= infixPrecedence[c.peek()] {
		c.parser.nextToken()
		c.infixExpression(canAssign)
	}
}

// expression compiles the loosest expression.
func (c *Compiler) expression() {
	c.parsePrecedence(precLowest)
}

// prefixExpression dispatches on the just-consumed token in prefix
// position. Returns false when the token cannot begin an expression.
func (c *Compiler) prefixExpression(canAssign bool) bool {
	switch c.parser.previous.Type {
	case TokenLeftParen:
		c.grouping()
	case TokenLeftBracket:
		c.listLiteral()
	case TokenLeftBrace:
		c.mapLiteral()
	case TokenMinus, TokenBang, TokenTilde:
		c.unaryOp()
	case TokenField:
		c.fieldExpr(canAssign)
	case TokenStaticField:
		c.staticFieldExpr(canAssign)
	case TokenName:
		c.nameExpr(canAssign)
	case TokenNumber, TokenString:
		c.literal()
	case TokenInterpolation:
		c.stringInterpolation()
	case TokenFalse:
		c.emitOp(bytecode.OpFalse)
	case TokenTrue:
		c.emitOp(bytecode.OpTrue)
	case TokenNull:
		c.emitOp(bytecode.OpNull)
	case TokenSuper:
		c.superExpr(canAssign)
	case TokenThis:
		c.thisExpr()
	default:
		return false
	}
	return true
}

// infixExpression dispatches on the just-consumed token in infix position.
// Only tokens with a non-precNone entry in infixPrecedence reach here.
func (c *Compiler) infixExpression(canAssign bool) {
	switch c.parser.previous.Type {
	case TokenLeftBracket:
		c.subscript(canAssign)
	case TokenDot:
		c.dotCall(canAssign)
	case TokenAmpAmp:
		c.andExpr()
	case TokenPipePipe:
		c.orExpr()
	case TokenQuestion:
		c.conditional()
	default:
		c.infixOp()
	}
}

// ---------------------------------------------------------------------------
// Prefix expressions

func (c *Compiler) grouping() {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

// literal pushes the parsed value of a number or string token.
func (c *Compiler) literal() {
	c.emitConstant(c.parser.previous.Value)
}

// listLiteral desugars [a, b] into List.new() followed by element appends.
func (c *Compiler) listLiteral() {
	c.loadCoreVariable("List")
	c.callMethod(0, "new()")

	for {
		c.ignoreNewlines()
		if c.peek() == TokenRightBracket {
			break
		}
		c.expression()
		c.callMethod(1, "addCore_(_)")
		if !c.match(TokenComma) {
			break
		}
	}
	c.ignoreNewlines()
	c.consume(TokenRightBracket, "Expect ']' after list elements.")
}

// mapLiteral desugars {k: v} into Map.new() followed by entry inserts. The
// key is parsed at unary precedence so a ':' is never swallowed by a range
// or conditional.
func (c *Compiler) mapLiteral() {
	c.loadCoreVariable("Map")
	c.callMethod(0, "new()")

	for {
		c.ignoreNewlines()
		if c.peek() == TokenRightBrace {
			break
		}

		c.parsePrecedence(precUnary)
		c.consume(TokenColon, "Expect ':' after map key.")
		c.ignoreNewlines()
		c.expression()
		c.callMethod(2, "addCore_(_,_)")

		if !c.match(TokenComma) {
			break
		}
	}
	c.ignoreNewlines()
	c.consume(TokenRightBrace, "Expect '}' after map entries.")
}

// stringInterpolation desugars "a %(b) c" into a list of the literal parts
// and expression results, joined into one string.
func (c *Compiler) stringInterpolation() {
	c.loadCoreVariable("List")
	c.callMethod(0, "new()")

	for {
		// The opening string part.
		c.literal()
		c.callMethod(1, "addCore_(_)")

		// The interpolated expression.
		c.ignoreNewlines()
		c.expression()
		c.callMethod(1, "addCore_(_)")

		c.ignoreNewlines()
		if !c.match(TokenInterpolation) {
			break
		}
	}

	// The trailing string part.
	c.consume(TokenString, "Expect end of string interpolation.")
	c.literal()
	c.callMethod(1, "addCore_(_)")

	c.callMethod(0, "join()")
}

// unaryOp compiles a prefix operator as a zero-argument method call on its
// operand.
func (c *Compiler) unaryOp() {
	name := operatorNames[c.parser.previous.Type]
	c.ignoreNewlines()
	c.parsePrecedence(precUnary + 1)
	c.callMethod(0, name)
}

func isLocalName(name string) bool {
	return len(name) > 0 && name[0] >= 'a' && name[0] <= 'z'
}

// nameExpr compiles a bare name: a local, an upvalue, an implicit self
// method call, or a module variable, in that order.
func (c *Compiler) nameExpr(canAssign bool) {
	tok := c.parser.previous
	if v := c.resolveNonmodule(tok.Lexeme); v.index != -1 {
		c.bareName(canAssign, v)
		return
	}

	// Inside a method, an unresolved lowercase name is a call on this,
	// which is what makes the grammar context-sensitive: a known variable
	// never parses an argument list, an unknown one may.
	if isLocalName(tok.Lexeme) && c.getEnclosingClass() != nil {
		c.loadThis()
		c.namedCall(canAssign, bytecode.OpCall)
		return
	}

	v := variable{scope: scopeModule, index: c.parser.module.FindVariable(tok.Lexeme)}
	if v.index == -1 {
		// Implicitly declare it in the hope a definition follows later in
		// the module; checked once the whole module has compiled.
		v.index = c.parser.module.DeclareVariable(tok.Lexeme, tok.Line)
		if v.index == -1 {
			c.error("Too many module variables defined.")
		}
	}
	c.bareName(canAssign, v)
}

// bareName loads or, with a following '=', assigns a resolved variable.
func (c *Compiler) bareName(canAssign bool, v variable) {
	if canAssign && c.match(TokenEq) {
		c.expression()
		switch v.scope {
		case scopeLocal:
			c.emitByteArg(bytecode.OpStoreLocal, v.index)
		case scopeUpvalue:
			c.emitByteArg(bytecode.OpStoreUpvalue, v.index)
		case scopeModule:
			c.emitShortArg(bytecode.OpStoreModuleVar, v.index)
		}
		return
	}
	c.loadVariable(v)
	c.allowLineBeforeDot()
}

// fieldExpr compiles a `_field` reference, implicitly declaring the field
// the first time the class body mentions it.
func (c *Compiler) fieldExpr(canAssign bool) {
	field := maxFields
	enclosingClass := c.getEnclosingClass()
	if enclosingClass == nil {
		c.error("Cannot reference a field outside of a class definition.")
	} else if enclosingClass.isForeign {
		c.error("Cannot define fields in a foreign class.")
	} else if enclosingClass.inStatic {
		c.error("Cannot use an instance field in a static method.")
	} else {
		field = enclosingClass.fields.Ensure(c.parser.previous.Lexeme)
		if field >= maxFields {
			c.errorf("A class can only have %d fields.", maxFields)
		}
	}

	isLoad := true
	if canAssign && c.match(TokenEq) {
		c.expression()
		isLoad = false
	}

	// Directly inside a method the receiver is local slot zero, so the
	// field is reachable without an explicit receiver load. A closure
	// nested in the method has to go through this.
	if c.parent != nil && c.parent.enclosingClass == enclosingClass {
		if isLoad {
			c.emitByteArg(bytecode.OpLoadFieldThis, field)
		} else {
			c.emitByteArg(bytecode.OpStoreFieldThis, field)
		}
	} else {
		c.loadThis()
		if isLoad {
			c.emitByteArg(bytecode.OpLoadField, field)
		} else {
			c.emitByteArg(bytecode.OpStoreField, field)
		}
	}
	c.allowLineBeforeDot()
}

// staticFieldExpr compiles a `__field` reference. Static fields are
// hoisted into a local of the scope surrounding the class body, so methods
// reach them as upvalues.
func (c *Compiler) staticFieldExpr(canAssign bool) {
	classCompiler := c.getEnclosingClassCompiler()
	if classCompiler == nil {
		c.error("Cannot use a static field outside of a class definition.")
		return
	}

	tok := c.parser.previous
	if classCompiler.resolveLocal(tok.Lexeme) == -1 {
		symbol := classCompiler.declareVariable(&tok)

		// Implicitly initialize it to null.
		classCompiler.emitOp(bytecode.OpNull)
		classCompiler.defineVariable(symbol)
	}

	// Resolve it properly, which may produce an upvalue when the reference
	// is inside a method rather than the class body's own scope.
	c.bareName(canAssign, c.resolveName(tok.Lexeme))
}

// superExpr compiles a superclass method call, either `super.name(...)` or
// a bare `super(...)` targeting the enclosing method's own signature.
func (c *Compiler) superExpr(canAssign bool) {
	enclosingClass := c.getEnclosingClass()
	if enclosingClass == nil {
		c.error("Cannot use 'super' outside of a method.")
	}

	c.loadThis()

	if c.match(TokenDot) {
		c.consume(TokenName, "Expect method name after 'super.'.")
		c.namedCall(canAssign, bytecode.OpSuper)
	} else if enclosingClass != nil {
		c.methodCall(bytecode.OpSuper, *enclosingClass.signature)
	}
}

func (c *Compiler) thisExpr() {
	if c.getEnclosingClass() == nil {
		c.error("Cannot use 'this' outside of a method.")
		return
	}
	c.loadThis()
}

// ---------------------------------------------------------------------------
// Infix expressions

// infixOp compiles a binary operator as a one-argument method call on the
// left operand. The right operand binds one level tighter, so operators at
// the same level associate left.
func (c *Compiler) infixOp() {
	typ := c.parser.previous.Type
	c.ignoreNewlines()
	c.parsePrecedence(infixPrecedence[typ] + 1)
	c.callSignature(bytecode.OpCall, Signature{
		Name:  operatorNames[typ],
		Kind:  SigMethod,
		Arity: 1,
	})
}

// andExpr short-circuits: the right operand only evaluates when the left
// is truthy.
func (c *Compiler) andExpr() {
	c.ignoreNewlines()
	jump := c.emitJump(bytecode.OpAnd)
	c.parsePrecedence(precLogicalAnd)
	c.patchJump(jump)
}

func (c *Compiler) orExpr() {
	c.ignoreNewlines()
	jump := c.emitJump(bytecode.OpOr)
	c.parsePrecedence(precLogicalOr)
	c.patchJump(jump)
}

// conditional compiles `cond ? then : else`.
func (c *Compiler) conditional() {
	c.ignoreNewlines()
	ifJump := c.emitJump(bytecode.OpJumpIf)

	c.parsePrecedence(precConditional)
	c.consume(TokenColon, "Expect ':' after then branch of conditional operator.")
	c.ignoreNewlines()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(ifJump)
	c.parsePrecedence(precAssignment)
	c.patchJump(elseJump)
}

// subscript compiles `receiver[args]` and `receiver[args] = value`.
func (c *Compiler) subscript(canAssign bool) {
	sig := Signature{Kind: SigSubscript}

	c.finishArgumentList(&sig)
	c.consume(TokenRightBracket, "Expect ']' after arguments.")
	c.allowLineBeforeDot()

	if canAssign && c.match(TokenEq) {
		sig.Kind = SigSubscriptSetter

		// The assigned value is the final argument.
		sig.Arity++
		c.validateNumParameters(sig.Arity)
		c.expression()
	}
	c.callSignature(bytecode.OpCall, sig)
}

// dotCall compiles `receiver.name`, with optional assignment, argument
// list and block argument.
func (c *Compiler) dotCall(canAssign bool) {
	c.ignoreNewlines()
	c.consume(TokenName, "Expect method name after '.'.")
	c.namedCall(canAssign, bytecode.OpCall)
}

// namedCall compiles the tail of a method call after the name token: a
// setter when an '=' follows, otherwise a getter or full call.
func (c *Compiler) namedCall(canAssign bool, op bytecode.Op) {
	sig := c.signatureFromToken(SigGetter)

	if canAssign && c.match(TokenEq) {
		c.ignoreNewlines()
		sig.Kind = SigSetter
		sig.Arity = 1

		c.expression()
		c.callSignature(op, sig)
	} else {
		c.methodCall(op, sig)
		c.allowLineBeforeDot()
	}
}

// methodCall compiles an optional argument list and block argument, then
// calls the resulting signature.
func (c *Compiler) methodCall(op bytecode.Op, sig Signature) {
	called := Signature{Name: sig.Name, Kind: SigGetter}

	if c.match(TokenLeftParen) {
		called.Kind = SigMethod

		// Allow an empty argument list.
		if c.peek() != TokenRightParen {
			c.finishArgumentList(&called)
		}
		c.consume(TokenRightParen, "Expect ')' after arguments.")
	}

	// A trailing block is sugar for a function literal argument.
	if c.match(TokenLeftBrace) {
		called.Kind = SigMethod
		called.Arity++

		fnCompiler := newCompiler(c.parser, c, false)

		fnSig := Signature{Kind: SigMethod}
		if c.match(TokenPipe) {
			fnCompiler.finishParameterList(&fnSig)
			c.consume(TokenPipe, "Expect '|' after function parameters.")
		}
		fnCompiler.fn.Arity = fnSig.Arity

		fnCompiler.finishBody()

		// Name the function after the method it is passed to, for stack
		// traces.
		fnCompiler.endCompiler(called.String() + " block argument")
	}

	// A super call inside an initializer must chain to another initializer.
	if sig.Kind == SigInitializer {
		if called.Kind != SigMethod {
			c.error("A superclass constructor must have an argument list.")
		}
		called.Kind = SigInitializer
	}

	c.callSignature(op, called)
}

// ---------------------------------------------------------------------------
// Argument and parameter lists

// validateNumParameters reports an error once when an argument or
// parameter list first exceeds the limit.
func (c *Compiler) validateNumParameters(numArgs int) {
	if numArgs == maxParameters+1 {
		c.errorf("Methods cannot have more than %d parameters.", maxParameters)
	}
}

// finishArgumentList compiles comma-separated arguments until the closing
// delimiter, which the caller consumes.
func (c *Compiler) finishArgumentList(sig *Signature) {
	for {
		c.ignoreNewlines()
		sig.Arity++
		c.validateNumParameters(sig.Arity)
		c.expression()
		if !c.match(TokenComma) {
			break
		}
	}

	// Allow a newline before the closing delimiter.
	c.ignoreNewlines()
}

// finishParameterList declares comma-separated parameters as locals of the
// function being compiled.
func (c *Compiler) finishParameterList(sig *Signature) {
	for {
		c.ignoreNewlines()
		sig.Arity++
		c.validateNumParameters(sig.Arity)
		c.declareNamedVariable()
		if !c.match(TokenComma) {
			break
		}
	}
}

// allowLineBeforeDot permits a method chain to wrap before the dot:
//
//	sequence
//	    .map {|x| x * 2 }
//	    .toList
func (c *Compiler) allowLineBeforeDot() {
	if c.peek() == TokenLine && c.peekNext() == TokenDot {
		c.parser.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Blocks and bodies

// finishBlock parses a block body after its '{'. Reports whether the block
// was a single expression, in which case its value is left on the stack.
func (c *Compiler) finishBlock() bool {
	// Empty blocks do nothing.
	if c.match(TokenRightBrace) {
		return false
	}

	// A block with no newline after the '{' is a single expression body.
	if !c.matchLine() {
		c.expression()
		c.consume(TokenRightBrace, "Expect '}' at end of block.")
		return true
	}

	// Empty blocks with just a newline inside do nothing.
	if c.match(TokenRightBrace) {
		return false
	}

	for {
		c.definition()
		c.consumeLine("Expect newline after statement.")
		if c.peek() == TokenRightBrace || c.peek() == TokenEOF {
			break
		}
	}
	c.consume(TokenRightBrace, "Expect '}' at end of block.")
	return false
}

// finishBody compiles a method or function body and its implicit return:
// an expression body returns its value, a statement body returns null, and
// an initializer always returns the receiver.
func (c *Compiler) finishBody() {
	isExpressionBody := c.finishBlock()

	if c.isInitializer {
		if isExpressionBody {
			c.emitOp(bytecode.OpPop)
		}
		c.emitByteArg(bytecode.OpLoadLocal, 0)
	} else if !isExpressionBody {
		c.emitOp(bytecode.OpNull)
	}
	c.emitOp(bytecode.OpReturn)
}

// ---------------------------------------------------------------------------
// Statements

// definition parses the statement forms only allowed at the top of a block
// or module, then falls through to statement.
func (c *Compiler) definition() {
	if c.matchAttribute() {
		c.definition()
		return
	}

	if c.match(TokenClass) {
		c.classDefinition(false)
		return
	}
	if c.match(TokenForeign) {
		c.consume(TokenClass, "Expect 'class' after 'foreign'.")
		c.classDefinition(true)
		return
	}

	c.disallowAttributes()

	if c.match(TokenImport) {
		c.importStatement()
		return
	}
	if c.match(TokenVar) {
		c.variableDefinition()
		return
	}
	c.statement()
}

// statement parses the simple statement forms.
func (c *Compiler) statement() {
	switch {
	case c.match(TokenBreak):
		c.breakStatement()
	case c.match(TokenContinue):
		c.continueStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenLeftBrace):
		// Block statement.
		c.pushScope()
		if c.finishBlock() {
			// The block was an expression, so discard its value.
			c.emitOp(bytecode.OpPop)
		}
		c.popScope()
	default:
		// Expression statement.
		c.expression()
		c.emitOp(bytecode.OpPop)
	}
}

func (c *Compiler) breakStatement() {
	if c.loop == nil {
		c.error("Cannot use 'break' outside of a loop.")
		return
	}

	// The jump leaves the scopes nested inside the loop, so their locals
	// are released first.
	c.discardLocals(c.loop.scopeDepth + 1)

	// The end of the loop is not known yet; the jump is recorded and
	// patched when the loop is finished.
	c.loop.breaks = append(c.loop.breaks, c.emitJump(bytecode.OpJump))
}

func (c *Compiler) continueStatement() {
	if c.loop == nil {
		c.error("Cannot use 'continue' outside of a loop.")
		return
	}

	c.discardLocals(c.loop.scopeDepth + 1)
	c.emitLoop()
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after if condition.")

	ifJump := c.emitJump(bytecode.OpJumpIf)
	c.statement()

	if c.match(TokenElse) {
		// Jump over the else branch when the then branch is taken.
		elseJump := c.emitJump(bytecode.OpJump)
		c.patchJump(ifJump)

		c.statement()
		c.patchJump(elseJump)
	} else {
		c.patchJump(ifJump)
	}
}

func (c *Compiler) returnStatement() {
	if c.peek() == TokenLine {
		// No return value: an initializer returns the receiver, anything
		// else returns null.
		if c.isInitializer {
			c.emitByteArg(bytecode.OpLoadLocal, 0)
		} else {
			c.emitOp(bytecode.OpNull)
		}
	} else {
		if c.isInitializer {
			c.error("A constructor cannot return a value.")
		}
		c.expression()
	}
	c.emitOp(bytecode.OpReturn)
}

func (c *Compiler) whileStatement() {
	var l loop
	c.startLoop(&l)

	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after while condition.")

	c.testExitLoop()
	c.loopBody()
	c.endLoop()
}

// forStatement compiles `for (i in sequence) body` against the iterator
// protocol. The sequence and the iterator live in hidden locals whose
// names contain a space so user code cannot collide with them:
//
//	{
//	  var seq_ = sequence
//	  var iter_
//	  while (iter_ = seq_.iterate(iter_)) {
//	    var i = seq_.iteratorValue(iter_)
//	    body
//	  }
//	}
func (c *Compiler) forStatement() {
	c.pushScope()

	c.consume(TokenLeftParen, "Expect '(' after 'for'.")
	c.consume(TokenName, "Expect for loop variable name.")
	name := c.parser.previous.Lexeme

	c.consume(TokenIn, "Expect 'in' after loop variable.")
	c.ignoreNewlines()

	// Evaluate the sequence expression and store it in a hidden local.
	c.expression()

	if c.numLocals+2 > maxLocals {
		c.errorf("Cannot declare more than %d variables in one scope. (Not enough space for for-loops internal variables)", maxLocals)
		return
	}
	seqSlot := c.addLocal("seq ")

	// The iterator itself, null before the first iterate call.
	c.emitOp(bytecode.OpNull)
	iterSlot := c.addLocal("iter ")

	c.consume(TokenRightParen, "Expect ')' after loop expression.")

	var l loop
	c.startLoop(&l)

	// Advance and test the iterator.
	c.emitByteArg(bytecode.OpLoadLocal, seqSlot)
	c.emitByteArg(bytecode.OpLoadLocal, iterSlot)
	c.callMethod(1, "iterate(_)")
	c.emitByteArg(bytecode.OpStoreLocal, iterSlot)
	c.testExitLoop()

	// Fetch the element for this iteration.
	c.emitByteArg(bytecode.OpLoadLocal, seqSlot)
	c.emitByteArg(bytecode.OpLoadLocal, iterSlot)
	c.callMethod(1, "iteratorValue(_)")

	// The loop variable gets its own scope so each iteration sees a fresh
	// variable, which matters when the body closes over it.
	c.pushScope()
	c.addLocal(name)

	c.loopBody()

	c.popScope()
	c.endLoop()
	c.popScope()
}

func (c *Compiler) variableDefinition() {
	// Grab the name but do not declare it yet: a local must not be in
	// scope inside its own initializer.
	c.consume(TokenName, "Expect variable name.")
	nameToken := c.parser.previous

	if c.match(TokenEq) {
		c.ignoreNewlines()
		c.expression()
	} else {
		c.emitOp(bytecode.OpNull)
	}

	symbol := c.declareVariable(&nameToken)
	c.defineVariable(symbol)
}

func (c *Compiler) importStatement() {
	c.ignoreNewlines()
	c.consume(TokenString, "Expect a string after 'import'.")
	moduleConstant := c.addConstant(c.parser.previous.Value)

	// Load the module.
	c.emitShortArg(bytecode.OpImportModule, moduleConstant)

	// Discard the result of executing the module body.
	c.emitOp(bytecode.OpPop)

	// The for clause is optional.
	if !c.match(TokenFor) {
		return
	}

	for {
		c.ignoreNewlines()
		c.consume(TokenName, "Expect variable name.")
		sourceToken := c.parser.previous

		// The name in the imported module.
		sourceConstant := c.addConstant(value.Str(sourceToken.Lexeme))

		// The name it is bound to here, renamed by 'as' when present.
		var slot int
		if c.match(TokenAs) {
			slot = c.declareNamedVariable()
		} else {
			slot = c.declareVariable(&sourceToken)
		}

		c.emitShortArg(bytecode.OpImportVariable, sourceConstant)
		c.defineVariable(slot)

		if !c.match(TokenComma) {
			break
		}
	}
}

// ---------------------------------------------------------------------------
// Loops

// startLoop opens a loop whose condition is about to be compiled.
func (c *Compiler) startLoop(l *loop) {
	l.enclosing = c.loop
	l.start = len(c.fn.Code) - 1
	l.scopeDepth = c.scopeDepth
	l.exitJump = -1
	c.loop = l
}

// testExitLoop emits the conditional exit using the condition on top of
// the stack.
func (c *Compiler) testExitLoop() {
	c.loop.exitJump = c.emitJump(bytecode.OpJumpIf)
}

func (c *Compiler) loopBody() {
	c.loop.body = len(c.fn.Code)
	c.statement()
}

// emitLoop emits an unconditional jump back to the top of the innermost
// loop.
func (c *Compiler) emitLoop() {
	// +2 for the operand of the instruction itself.
	offset := len(c.fn.Code) - c.loop.start + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitShortArg(bytecode.OpLoop, offset)
}

// endLoop closes the loop: jumps back to the condition, then resolves the
// exit jump and every break recorded in the body.
func (c *Compiler) endLoop() {
	c.emitLoop()

	if c.loop.exitJump != -1 {
		c.patchJump(c.loop.exitJump)
	}
	for _, offset := range c.loop.breaks {
		c.patchJump(offset)
	}
	c.loop = c.loop.enclosing
}
