package bytecode

import (
	"fmt"
	"strings"

	"github.com/larklang/lark/value"
)

// Disassemble returns a human-readable listing of the function, nested
// function constants included.
func Disassemble(fn *Fn) string {
	var sb strings.Builder
	disassemble(&sb, fn)
	return sb.String()
}

func disassemble(sb *strings.Builder, fn *Fn) {
	name := fn.Name
	if name == "" {
		name = "(fn)"
	}
	fmt.Fprintf(sb, "; === %s ===\n", name)
	fmt.Fprintf(sb, "; module=%s arity=%d slots=%d upvalues=%d\n",
		fn.Module, fn.Arity, fn.MaxSlots, fn.NumUpvalues)

	if len(fn.Constants) > 0 {
		sb.WriteString("; constants:\n")
		for i, c := range fn.Constants {
			display := c.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			fmt.Fprintf(sb, ";   [%3d] %s\n", i, display)
		}
	}

	offset := 0
	lastLine := -1
	for offset < len(fn.Code) {
		op := Op(fn.Code[offset])
		line := fn.Lines[offset]
		if line != lastLine {
			fmt.Fprintf(sb, "%4d %04d  ", line, offset)
			lastLine = line
		} else {
			fmt.Fprintf(sb, "     %04d  ", offset)
		}
		sb.WriteString(op.Name())

		next := offset + 1
		for _, width := range ops[op].operands {
			var arg int
			if width == 1 {
				arg = int(fn.Code[next])
			} else {
				arg = fn.ReadShort(next)
			}
			fmt.Fprintf(sb, " %d", arg)
			next += width
		}

		// Closures carry one capture pair per upvalue after the constant.
		if op == OpClosure {
			constant := fn.ReadShort(offset + 1)
			if nested, ok := fn.Constants[constant].AsObj().(*Fn); ok {
				for i := 0; i < nested.NumUpvalues; i++ {
					isLocal := fn.Code[next] == 1
					index := fn.Code[next+1]
					kind := "upvalue"
					if isLocal {
						kind = "local"
					}
					fmt.Fprintf(sb, " (%s %d)", kind, index)
					next += 2
				}
			}
		}

		sb.WriteByte('\n')
		offset = next
	}

	// Nested functions follow their parent's listing.
	for _, c := range fn.Constants {
		if c.Kind() != value.KindObj {
			continue
		}
		if nested, ok := c.AsObj().(*Fn); ok {
			sb.WriteByte('\n')
			disassemble(sb, nested)
		}
	}
}
