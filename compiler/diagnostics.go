package compiler

import (
	"fmt"
	"io"
)

// DiagnosticKind separates lexical errors (malformed input the scanner
// could not tokenize) from compile errors (structurally valid tokens that
// violate the language's semantic rules).
type DiagnosticKind int

const (
	DiagLexical DiagnosticKind = iota
	DiagCompile
)

func (k DiagnosticKind) String() string {
	if k == DiagLexical {
		return "lexical"
	}
	return "compile"
}

// Diagnostic is one reported problem. Line is 1-based. Message already
// includes the "at 'token'" context where one applies.
type Diagnostic struct {
	Module  string
	Line    int
	Kind    DiagnosticKind
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s line %d] Error: %s", d.Module, d.Line, d.Message)
}

// Reporter receives diagnostics as they are found. Compilation does not
// stop at the first problem; a single pass may report several.
type Reporter interface {
	Report(d Diagnostic)
}

// CollectReporter accumulates diagnostics for later inspection.
type CollectReporter struct {
	Diagnostics []Diagnostic
}

func (r *CollectReporter) Report(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// WriteReporter prints each diagnostic to a writer, one per line.
type WriteReporter struct {
	W io.Writer
}

func (r WriteReporter) Report(d Diagnostic) {
	fmt.Fprintln(r.W, d.String())
}
