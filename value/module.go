package value

// MaxModuleVars is the maximum number of top-level variables one module can
// hold. The limit is explicit in the bytecode: module-variable load and
// store instructions carry a two-byte symbol.
const MaxModuleVars = 1 << 16

// DefineResult describes the outcome of Module.Define.
type DefineResult int

const (
	// DefineOK means the variable is now defined.
	DefineOK DefineResult = iota

	// DefineAlreadyDefined means an explicit definition already exists.
	DefineAlreadyDefined

	// DefineTooMany means the module is at MaxModuleVars.
	DefineTooMany

	// DefineUsedBeforeDefined means the variable was implicitly declared by
	// an earlier use that is only legal for forward references to
	// non-local-style (capitalized) names. The definition still took
	// effect; the caller decides whether to report it.
	DefineUsedBeforeDefined
)

// Module is a compilation unit's top-level scope: an ordered variable table
// plus the values bound to each slot. The compiler merges new declarations
// into it; the VM owns it afterwards.
type Module struct {
	Name string

	variableNames *SymbolTable
	Variables     []Value

	// Symbols that were implicitly declared by a forward reference and not
	// yet defined, mapped to the line of first use.
	implicitLines map[int]int
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		Name:          name,
		variableNames: NewSymbolTable(),
		implicitLines: make(map[int]int),
	}
}

// Copy returns a module with the same variables and pending forward
// references as m. Compiling against the copy leaves m untouched.
func (m *Module) Copy() *Module {
	c := NewModule(m.Name)
	for _, name := range m.variableNames.Names() {
		c.variableNames.Add(name)
	}
	c.Variables = append([]Value(nil), m.Variables...)
	for symbol, line := range m.implicitLines {
		c.implicitLines[symbol] = line
	}
	return c
}

// NumVariables returns the number of declared variables, implicit ones
// included.
func (m *Module) NumVariables() int { return m.variableNames.Count() }

// VariableName returns the name bound to a variable slot.
func (m *Module) VariableName(symbol int) string { return m.variableNames.Name(symbol) }

// FindVariable returns the slot for name, or -1.
func (m *Module) FindVariable(name string) int { return m.variableNames.Find(name) }

// DeclareVariable implicitly declares name as used-before-definition at the
// given source line. Returns the new slot, or -1 if the module is full.
func (m *Module) DeclareVariable(name string, line int) int {
	if m.variableNames.Count() == MaxModuleVars {
		return -1
	}
	symbol := m.variableNames.Add(name)
	m.Variables = append(m.Variables, Null())
	m.implicitLines[symbol] = line
	return symbol
}

// DefineVariable binds name to value at module scope. If the name was
// implicitly declared by an earlier use, the existing slot is filled in.
// The returned line is the first-use line for DefineUsedBeforeDefined, and
// zero otherwise.
func (m *Module) DefineVariable(name string, v Value) (int, DefineResult, int) {
	if m.variableNames.Count() == MaxModuleVars {
		return -1, DefineTooMany, 0
	}
	symbol := m.variableNames.Find(name)
	if symbol == -1 {
		symbol = m.variableNames.Add(name)
		m.Variables = append(m.Variables, v)
		return symbol, DefineOK, 0
	}
	if line, implicit := m.implicitLines[symbol]; implicit {
		delete(m.implicitLines, symbol)
		m.Variables[symbol] = v
		if isLocalName(name) {
			return symbol, DefineUsedBeforeDefined, line
		}
		return symbol, DefineOK, 0
	}
	return symbol, DefineAlreadyDefined, 0
}

// ImplicitUseLine returns the line a still-undefined variable was first
// used at, or -1 if the slot holds a real definition.
func (m *Module) ImplicitUseLine(symbol int) int {
	if line, ok := m.implicitLines[symbol]; ok {
		return line
	}
	return -1
}

// isLocalName reports whether name looks like a local (lowercase-led)
// variable. Forward references are only allowed for non-local names, which
// by convention are classes.
func isLocalName(name string) bool {
	return len(name) > 0 && name[0] >= 'a' && name[0] <= 'z'
}
