package value

import "testing"

func TestDefineVariable(t *testing.T) {
	m := NewModule("main")

	symbol, result, _ := m.DefineVariable("x", Num(1))
	if result != DefineOK || symbol != 0 {
		t.Fatalf("define x = (%d, %v)", symbol, result)
	}
	if m.FindVariable("x") != symbol {
		t.Errorf("FindVariable(x) = %d, want %d", m.FindVariable("x"), symbol)
	}
	if m.VariableName(symbol) != "x" {
		t.Errorf("VariableName = %q, want x", m.VariableName(symbol))
	}

	_, result, _ = m.DefineVariable("x", Num(2))
	if result != DefineAlreadyDefined {
		t.Errorf("redefine x = %v, want DefineAlreadyDefined", result)
	}
}

func TestImplicitDeclarationFilledByDefinition(t *testing.T) {
	m := NewModule("main")

	// A use of an undefined capitalized name declares it implicitly.
	symbol := m.DeclareVariable("Widget", 3)
	if symbol == -1 {
		t.Fatal("declare failed")
	}
	if line := m.ImplicitUseLine(symbol); line != 3 {
		t.Fatalf("use line = %d, want 3", line)
	}

	got, result, _ := m.DefineVariable("Widget", Num(1))
	if result != DefineOK || got != symbol {
		t.Fatalf("define Widget = (%d, %v)", got, result)
	}
	if line := m.ImplicitUseLine(symbol); line != -1 {
		t.Errorf("use line after define = %d, want -1", line)
	}
}

func TestForwardReferenceToLocalStyleName(t *testing.T) {
	m := NewModule("main")
	m.DeclareVariable("widget", 7)

	// Lowercase names cannot be forward-referenced; the definition still
	// takes effect so compilation can continue.
	symbol, result, line := m.DefineVariable("widget", Num(1))
	if result != DefineUsedBeforeDefined {
		t.Fatalf("result = %v, want DefineUsedBeforeDefined", result)
	}
	if line != 7 {
		t.Errorf("first-use line = %d, want 7", line)
	}
	if m.ImplicitUseLine(symbol) != -1 {
		t.Error("slot still flagged implicit after definition")
	}
}

func TestModuleCopyIsIndependent(t *testing.T) {
	m := NewModule("main")
	m.DefineVariable("x", Num(1))
	m.DeclareVariable("Widget", 3)

	c := m.Copy()
	if c.NumVariables() != m.NumVariables() {
		t.Fatalf("copy has %d variables, want %d", c.NumVariables(), m.NumVariables())
	}
	if c.FindVariable("x") != m.FindVariable("x") {
		t.Error("copy lost the slot for x")
	}
	if line := c.ImplicitUseLine(c.FindVariable("Widget")); line != 3 {
		t.Errorf("copy use line = %d, want 3", line)
	}

	// Mutations of the copy must not reach the original.
	c.DeclareVariable("Gadget", 9)
	c.DefineVariable("Widget", Num(2))
	if m.FindVariable("Gadget") != -1 {
		t.Error("Gadget leaked into the original")
	}
	if line := m.ImplicitUseLine(m.FindVariable("Widget")); line != 3 {
		t.Errorf("original use line = %d, want 3", line)
	}
}

func TestSymbolTable(t *testing.T) {
	st := NewSymbolTable()

	if st.Find("a") != -1 {
		t.Error("Find on empty table should be -1")
	}

	a := st.Add("a")
	b := st.Ensure("b")
	if a != 0 || b != 1 {
		t.Errorf("symbols = %d, %d; want 0, 1", a, b)
	}

	// Ensure is idempotent; Add always appends.
	if st.Ensure("a") != a {
		t.Error("Ensure should reuse the existing symbol")
	}
	if st.Count() != 2 {
		t.Errorf("Count = %d, want 2", st.Count())
	}
	if st.Name(b) != "b" {
		t.Errorf("Name(%d) = %q, want b", b, st.Name(b))
	}
}

func TestValueEquality(t *testing.T) {
	l := &List{}
	tests := []struct {
		a, b Value
		want bool
	}{
		{Null(), Null(), true},
		{Null(), Bool(false), false},
		{Bool(true), Bool(true), true},
		{Num(1), Num(1), true},
		{Num(1), Num(2), false},
		{Str("a"), Str("a"), true},
		{Str("a"), Str("b"), false},
		{NewList(l), NewList(l), true},
		{NewList(l), NewList(&List{}), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equals(tt.b); got != tt.want {
			t.Errorf("%v == %v: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMapInsertionOrder(t *testing.T) {
	m := &Map{}
	m.Set(Str("b"), Num(2))
	m.Set(Str("a"), Num(1))
	m.Set(Str("b"), Num(3))

	var keys []string
	m.Each(func(key, val Value) {
		keys = append(keys, key.AsString())
	})
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v, want [b a]", keys)
	}

	if v, ok := m.Get(Str("b")); !ok || v.AsNum() != 3 {
		t.Errorf("Get(b) = %v, %v", v, ok)
	}
	if _, ok := m.Get(Str("missing")); ok {
		t.Error("Get(missing) should report absence")
	}
}
