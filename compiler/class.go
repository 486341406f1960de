package compiler

import (
	"github.com/larklang/lark/bytecode"
	"github.com/larklang/lark/value"
)

// classDefinition compiles a class body after the 'class' keyword. The
// class is built at runtime: the name constant and superclass are pushed,
// a class instruction creates the class object, and each method body is
// bound to it with a method instruction.
func (c *Compiler) classDefinition(isForeign bool) {
	// Create a variable to store the class in.
	classVariable := variable{scope: scopeLocal, index: c.declareNamedVariable()}
	if c.scopeDepth == -1 {
		classVariable.scope = scopeModule
	}
	className := c.parser.previous.Lexeme

	// Make a string constant for the name.
	c.emitConstant(value.Str(className))

	// Load the superclass, or Object when there is none.
	if c.match(TokenIs) {
		c.parsePrecedence(precCall)
	} else {
		c.loadCoreVariable("Object")
	}

	// The field count is not known until the whole body has compiled, so a
	// placeholder is emitted and patched afterwards.
	numFieldsInstruction := -1
	if isForeign {
		c.emitOp(bytecode.OpForeignClass)
	} else {
		numFieldsInstruction = c.emitByteArg(bytecode.OpClass, 255)
	}

	// Store it in its name.
	c.defineVariable(classVariable.index)

	// Static fields in the body are hoisted out into locals declared in
	// this scope, so methods that use them close over them.
	c.pushScope()

	info := &classInfo{
		name:      className,
		isForeign: isForeign,
		fields:    value.NewSymbolTable(),
	}
	if c.attributes.Len() > 0 {
		info.classAttributes = &value.Map{}
	}
	c.copyAttributes(info.classAttributes)

	c.enclosingClass = info

	c.consume(TokenLeftBrace, "Expect '{' after class declaration.")
	c.matchLine()

	for !c.match(TokenRightBrace) {
		if !c.method(classVariable) {
			break
		}

		// Don't require a newline after the last definition.
		if c.match(TokenRightBrace) {
			break
		}
		c.consumeLine("Expect newline after definition in class.")
	}

	if info.classAttributes != nil || info.methodAttributes != nil {
		c.emitClassAttributes(info)
		c.loadVariable(classVariable)
		c.emitOp(bytecode.OpEndClass)
	}

	if !isForeign && numFieldsInstruction != -1 {
		c.fn.Code[numFieldsInstruction] = byte(info.fields.Count())
	}

	c.enclosingClass = nil
	c.popScope()
}

// method compiles one member of a class body. Reports false when no method
// could be parsed.
func (c *Compiler) method(classVariable variable) bool {
	// Attributes before a method attach to it.
	if c.matchAttribute() {
		return c.method(classVariable)
	}

	isForeign := c.match(TokenForeign)
	isStatic := c.match(TokenStatic)
	c.enclosingClass.inStatic = isStatic

	sigToken := c.peek()
	c.parser.nextToken()
	if !isSignatureToken(sigToken) {
		c.error("Expect method definition.")
		return false
	}

	sig := c.signatureFromToken(SigGetter)

	// Shared with the body so bare super calls see the final signature.
	c.enclosingClass.signature = &sig

	methodCompiler := newCompiler(c.parser, c, true)

	// Parse the rest of the signature, declaring the parameters as the
	// method's first locals.
	methodCompiler.parseSignature(sigToken, &sig)
	methodCompiler.fn.Arity = sig.Arity
	methodCompiler.isInitializer = sig.Kind == SigInitializer

	if isStatic && sig.Kind == SigInitializer {
		c.error("A constructor cannot be static.")
	}

	fullSignature := sig.String()

	c.copyMethodAttributes(isForeign, isStatic, fullSignature)

	methodSymbol := c.declareMethod(fullSignature)

	if isForeign {
		// The runtime binds a foreign method by its signature, so only the
		// signature constant is emitted.
		c.emitConstant(value.Str(fullSignature))
	} else {
		c.consume(TokenLeftBrace, "Expect '{' to begin method body.")
		methodCompiler.finishBody()
		methodCompiler.endCompiler(fullSignature)
	}

	c.defineMethod(classVariable, isStatic, methodSymbol)

	if sig.Kind == SigInitializer {
		// Also define a matching constructor on the metaclass. It allocates
		// the instance, then chains to the initializer just defined.
		sig.Kind = SigMethod
		constructorSymbol := c.methodSymbol(sig.String())

		c.createConstructor(sig, methodSymbol)
		c.defineMethod(classVariable, true, constructorSymbol)
	}
	return true
}

// declareMethod interns the method's symbol and reports a duplicate
// definition within the class being compiled.
func (c *Compiler) declareMethod(fullSignature string) int {
	symbol := c.methodSymbol(fullSignature)

	info := c.enclosingClass
	methods := &info.methods
	staticPrefix := ""
	if info.inStatic {
		methods = &info.staticMethods
		staticPrefix = "static "
	}

	for _, existing := range *methods {
		if existing == symbol {
			c.errorf("Class %s already defines a %smethod '%s'.",
				info.name, staticPrefix, fullSignature)
			break
		}
	}
	*methods = append(*methods, symbol)
	return symbol
}

// defineMethod emits the instruction binding the method body on the stack
// to the class.
func (c *Compiler) defineMethod(classVariable variable, isStatic bool, methodSymbol int) {
	// Load the class each time: when the body declared static fields, they
	// sit above the class variable's slot on the stack.
	c.loadVariable(classVariable)

	op := bytecode.OpMethodInstance
	if isStatic {
		op = bytecode.OpMethodStatic
	}
	c.emitShortArg(op, methodSymbol)
}

// createConstructor synthesizes the metaclass constructor for an
// initializer: allocate the instance, run the initializer on it, return
// the instance.
func (c *Compiler) createConstructor(sig Signature, initializerSymbol int) {
	methodCompiler := newCompiler(c.parser, c, true)

	op := bytecode.OpConstruct
	if c.enclosingClass.isForeign {
		op = bytecode.OpForeignConstruct
	}
	methodCompiler.emitOp(op)

	// Run the initializer on the fresh instance.
	methodCompiler.emitOp(bytecode.OpCall)
	methodCompiler.emitByte(byte(sig.Arity))
	methodCompiler.emitShort(initializerSymbol)
	methodCompiler.adjustSlots(-sig.Arity)

	methodCompiler.emitOp(bytecode.OpReturn)
	methodCompiler.fn.Arity = sig.Arity
	methodCompiler.endCompiler("")
}

// ---------------------------------------------------------------------------
// Signatures

// signatureFromToken starts a signature named by the just-consumed token.
func (c *Compiler) signatureFromToken(kind SignatureKind) Signature {
	tok := c.parser.previous
	sig := Signature{Name: tok.Lexeme, Kind: kind}
	if len(sig.Name) > maxVariableName {
		c.errorf("Method names cannot be longer than %d characters.", maxVariableName)
		sig.Name = sig.Name[:maxVariableName]
	}
	return sig
}

// isSignatureToken reports whether a token can begin a method signature.
func isSignatureToken(typ TokenType) bool {
	switch typ {
	case TokenName, TokenConstruct, TokenLeftBracket,
		TokenMinus, TokenBang, TokenTilde,
		TokenPlus, TokenStar, TokenSlash, TokenPercent,
		TokenLtLt, TokenGtGt, TokenPipe, TokenCaret, TokenAmp,
		TokenLt, TokenGt, TokenLtEq, TokenGtEq, TokenEqEq, TokenBangEq,
		TokenDotDot, TokenDotDotDot, TokenIs:
		return true
	}
	return false
}

// parseSignature parses the remainder of a signature whose name token has
// been consumed, declaring the parameters in this (the method's) frame.
func (c *Compiler) parseSignature(typ TokenType, sig *Signature) {
	switch typ {
	case TokenName:
		c.namedSignature(sig)
	case TokenConstruct:
		c.constructorSignature(sig)
	case TokenLeftBracket:
		c.subscriptSignature(sig)
	case TokenMinus:
		c.mixedSignature(sig)
	case TokenBang, TokenTilde:
		c.unarySignature(sig)
	default:
		c.infixSignature(sig)
	}
}

// unarySignature is a prefix operator: no parameters.
func (c *Compiler) unarySignature(sig *Signature) {
	sig.Kind = SigGetter
}

// infixSignature is a binary operator: exactly one parameter.
func (c *Compiler) infixSignature(sig *Signature) {
	sig.Kind = SigMethod
	sig.Arity = 1
	c.consume(TokenLeftParen, "Expect '(' after operator name.")
	c.declareNamedVariable()
	c.consume(TokenRightParen, "Expect ')' after parameter name.")
}

// mixedSignature handles '-', which is both a prefix and an infix
// operator depending on whether a parameter list follows.
func (c *Compiler) mixedSignature(sig *Signature) {
	sig.Kind = SigGetter

	if c.match(TokenLeftParen) {
		sig.Kind = SigMethod
		sig.Arity = 1
		c.declareNamedVariable()
		c.consume(TokenRightParen, "Expect ')' after parameter name.")
	}
}

// maybeSetter parses the '=(value)' tail shared by setters and subscript
// setters. Reports whether one was parsed.
func (c *Compiler) maybeSetter(sig *Signature) bool {
	if !c.match(TokenEq) {
		return false
	}

	if sig.Kind == SigSubscript {
		sig.Kind = SigSubscriptSetter
	} else {
		sig.Kind = SigSetter
	}

	c.consume(TokenLeftParen, "Expect '(' after '='.")
	c.declareNamedVariable()
	c.consume(TokenRightParen, "Expect ')' after parameter name.")

	sig.Arity++
	return true
}

// subscriptSignature parses '[params]' with an optional setter tail.
func (c *Compiler) subscriptSignature(sig *Signature) {
	sig.Kind = SigSubscript

	// The name is currently '[' from the token that matched; the brackets
	// are part of the canonical form instead.
	sig.Name = ""

	c.finishParameterList(sig)
	c.consume(TokenRightBracket, "Expect ']' after parameters.")

	c.maybeSetter(sig)
}

// parameterList parses an optional parenthesized parameter list.
func (c *Compiler) parameterList(sig *Signature) {
	if !c.match(TokenLeftParen) {
		return
	}
	sig.Kind = SigMethod

	// Allow an empty parameter list.
	if c.match(TokenRightParen) {
		return
	}
	c.finishParameterList(sig)
	c.consume(TokenRightParen, "Expect ')' after parameters.")
}

// namedSignature is a regular named method: getter, setter, or method with
// a parameter list.
func (c *Compiler) namedSignature(sig *Signature) {
	sig.Kind = SigGetter

	// A setter cannot also have a parameter list.
	if c.maybeSetter(sig) {
		return
	}
	c.parameterList(sig)
}

// constructorSignature parses 'construct name(params)'.
func (c *Compiler) constructorSignature(sig *Signature) {
	c.consume(TokenName, "Expect constructor name after 'construct'.")

	*sig = c.signatureFromToken(SigInitializer)

	if c.match(TokenEq) {
		c.error("A constructor cannot be a setter.")
	}
	if !c.match(TokenLeftParen) {
		c.error("A constructor cannot be a getter.")
		return
	}

	// Allow an empty parameter list.
	if c.match(TokenRightParen) {
		return
	}
	c.finishParameterList(sig)
	c.consume(TokenRightParen, "Expect ')' after parameters.")
}

// ---------------------------------------------------------------------------
// Attributes

// matchAttribute parses one '#' attribute line if present:
//
//	#key
//	#key = value
//	#group(a, b = 2)
//
// A '!' after the '#' marks the attribute as runtime-visible; others are
// validated and discarded.
func (c *Compiler) matchAttribute() bool {
	if !c.match(TokenHash) {
		return false
	}
	c.numAttributes++

	runtimeAccess := c.match(TokenBang)

	if c.match(TokenName) {
		group := value.Str(c.parser.previous.Lexeme)

		switch {
		case c.peek() == TokenEq || c.peek() == TokenLine:
			key := group
			val := value.Null()
			if c.match(TokenEq) {
				val = c.consumeLiteral("Expect a Bool, Num, String or Identifier literal for an attribute value.")
			}
			if runtimeAccess {
				c.addToAttributeGroup(value.Null(), key, val)
			}
		case c.match(TokenLeftParen):
			c.ignoreNewlines()
			if c.match(TokenRightParen) {
				c.error("Expected attributes in group, group cannot be empty.")
			} else {
				for c.peek() != TokenRightParen {
					c.consume(TokenName, "Expect name for attribute key.")
					key := value.Str(c.parser.previous.Lexeme)
					val := value.Null()
					if c.match(TokenEq) {
						val = c.consumeLiteral("Expect a Bool, Num, String or Identifier literal for an attribute value.")
					}
					if runtimeAccess {
						c.addToAttributeGroup(group, key, val)
					}
					c.ignoreNewlines()
					if !c.match(TokenComma) {
						break
					}
					c.ignoreNewlines()
				}
				c.ignoreNewlines()
				c.consume(TokenRightParen, "Expected ')' after grouped attributes.")
			}
		default:
			c.error("Expect an equal, newline or grouping after an attribute key.")
		}
	} else {
		c.error("Expect an attribute definition after #.")
	}

	c.consumeLine("Expect newline after attribute.")
	return true
}

// consumeLiteral parses an attribute value: a literal or a bare name,
// which stands for its own spelling.
func (c *Compiler) consumeLiteral(message string) value.Value {
	switch {
	case c.match(TokenFalse):
		return value.Bool(false)
	case c.match(TokenTrue):
		return value.Bool(true)
	case c.match(TokenNumber):
		return c.parser.previous.Value
	case c.match(TokenString):
		return c.parser.previous.Value
	case c.match(TokenName):
		return value.Str(c.parser.previous.Lexeme)
	}

	c.error(message)
	c.parser.nextToken()
	return value.Null()
}

// disallowAttributes reports attributes attached to something that cannot
// carry them, then drops them so the error is reported once.
func (c *Compiler) disallowAttributes() {
	if c.numAttributes > 0 {
		c.error("Attributes can only specified before a class or a method")
		c.attributes = &value.Map{}
		c.numAttributes = 0
	}
}

// addToAttributeGroup stores a runtime-visible attribute. The pending map
// is two levels: group (null for ungrouped) to key to the list of values
// seen for the key.
func (c *Compiler) addToAttributeGroup(group, key, val value.Value) {
	groupMap := &value.Map{}
	if existing, ok := c.attributes.Get(group); ok {
		groupMap = existing.AsMap()
	} else {
		c.attributes.Set(group, value.NewMap(groupMap))
	}

	items := &value.List{}
	if existing, ok := groupMap.Get(key); ok {
		items = existing.AsList()
	} else {
		groupMap.Set(key, value.NewList(items))
	}
	items.Add(val)
}

// copyAttributes moves the pending attributes into a class's attribute
// map. A nil destination discards them.
func (c *Compiler) copyAttributes(into *value.Map) {
	c.numAttributes = 0
	if c.attributes.Len() == 0 {
		return
	}
	if into == nil {
		return
	}
	c.attributes.Each(func(key, val value.Value) {
		into.Set(key, val)
	})
	c.attributes = &value.Map{}
}

// copyMethodAttributes moves the pending attributes into the enclosing
// class, keyed by the method's signature with its modifiers.
func (c *Compiler) copyMethodAttributes(isForeign, isStatic bool, fullSignature string) {
	c.numAttributes = 0
	if c.attributes.Len() == 0 {
		return
	}

	methodAttr := &value.Map{}
	c.attributes.Each(func(key, val value.Value) {
		methodAttr.Set(key, val)
	})
	c.attributes = &value.Map{}

	full := fullSignature
	if isStatic {
		full = "static " + full
	}
	if isForeign {
		full = "foreign " + full
	}

	if c.enclosingClass.methodAttributes == nil {
		c.enclosingClass.methodAttributes = &value.Map{}
	}
	c.enclosingClass.methodAttributes.Set(value.Str(full), value.NewMap(methodAttr))
}

// emitClassAttributes pushes the runtime attribute structure for a class
// and instantiates the core ClassAttributes wrapper with it.
func (c *Compiler) emitClassAttributes(info *classInfo) {
	c.loadCoreVariable("ClassAttributes")

	if info.classAttributes != nil {
		c.emitConstant(value.NewMap(info.classAttributes))
	} else {
		c.emitOp(bytecode.OpNull)
	}
	if info.methodAttributes != nil {
		c.emitConstant(value.NewMap(info.methodAttributes))
	} else {
		c.emitOp(bytecode.OpNull)
	}

	c.callMethod(2, "new(_,_)")
}
