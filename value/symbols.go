package value

// SymbolTable interns strings to small integer symbols. Symbols are stable:
// a name keeps the index it was first added at. Method signatures, class
// fields and module variable names all dispatch through one of these.
type SymbolTable struct {
	names []string
	index map[string]int
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{index: make(map[string]int)}
}

// Count returns the number of interned symbols.
func (t *SymbolTable) Count() int { return len(t.names) }

// Name returns the name for a symbol. Panics on out-of-range symbols.
func (t *SymbolTable) Name(symbol int) string { return t.names[symbol] }

// Find returns the symbol for name, or -1 if it has not been added.
func (t *SymbolTable) Find(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Add appends name and returns its new symbol. The caller is responsible
// for checking Find first if duplicates matter.
func (t *SymbolTable) Add(name string) int {
	symbol := len(t.names)
	t.names = append(t.names, name)
	t.index[name] = symbol
	return symbol
}

// Ensure returns the existing symbol for name, adding it if needed.
func (t *SymbolTable) Ensure(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return t.Add(name)
}

// Names returns the interned names in symbol order. The slice is shared;
// callers must not mutate it.
func (t *SymbolTable) Names() []string { return t.names }
