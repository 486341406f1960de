package bytecode

import "github.com/larklang/lark/value"

// UpvalueDesc records how a closure captures one variable: from the
// immediately enclosing frame's locals, or from that frame's own upvalues.
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Fn is a compiled function artifact: the unit of code the compiler hands
// to the VM to wrap as a callable. Methods, nested function literals and
// the top-level chunk of a module all compile to one of these.
type Fn struct {
	// Module is the name of the module the function was compiled in.
	Module string

	// Name is the debug name: a method's full signature, "(script)" for a
	// module body.
	Name string

	Code      []byte
	Constants []value.Value

	// Lines maps each code byte to the 1-based source line it was
	// generated from, for runtime error reporting.
	Lines []int

	Arity       int
	NumUpvalues int
	Upvalues    []UpvalueDesc

	// MaxSlots is the high-water mark of stack slots the function ever has
	// live at once, locals included. The VM sizes its stack-growth check at
	// call time from this.
	MaxSlots int
}

// NewFn creates an empty function for the given module.
func NewFn(module string, maxSlots int) *Fn {
	return &Fn{Module: module, MaxSlots: maxSlots}
}

// AppendByte appends one raw code byte attributed to line.
func (f *Fn) AppendByte(b byte, line int) int {
	offset := len(f.Code)
	f.Code = append(f.Code, b)
	f.Lines = append(f.Lines, line)
	return offset
}

// AppendShort appends a big-endian two-byte operand attributed to line.
func (f *Fn) AppendShort(v int, line int) {
	f.AppendByte(byte(v>>8)&0xff, line)
	f.AppendByte(byte(v)&0xff, line)
}

// PatchShort overwrites the two code bytes at offset with v.
func (f *Fn) PatchShort(offset, v int) {
	f.Code[offset] = byte(v >> 8 & 0xff)
	f.Code[offset+1] = byte(v)
}

// ReadShort decodes the big-endian operand at offset.
func (f *Fn) ReadShort(offset int) int {
	return int(f.Code[offset])<<8 | int(f.Code[offset+1])
}

// BindName attaches the debug name once compilation of the body finishes.
func (f *Fn) BindName(name string) { f.Name = name }
