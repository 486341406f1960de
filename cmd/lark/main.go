// Lark CLI - compiles .lark sources to bytecode artifacts
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/tliron/commonlog"

	"github.com/larklang/lark/bytecode"
	"github.com/larklang/lark/cache"
	"github.com/larklang/lark/compiler"
	"github.com/larklang/lark/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("lark")

func main() {
	tokens := flag.Bool("tokens", false, "Dump the token stream and exit")
	disasm := flag.Bool("disasm", false, "Print a disassembly of the compiled module")
	check := flag.Bool("check", false, "Report errors without producing output")
	output := flag.String("o", "", "Write the compiled artifact to this file")
	expr := flag.String("e", "", "Compile a single expression")
	interactive := flag.Bool("i", false, "Start interactive mode")
	moduleName := flag.String("module", "", "Module name used in diagnostics (default: file name)")
	noCache := flag.Bool("no-cache", false, "Bypass the artifact cache even when enabled in lark.toml")
	verbosity := flag.Int("v", 0, "Log verbosity (0-2)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lark [options] [script.lark]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles Lark source to bytecode. With no script, looks for a lark.toml\n")
		fmt.Fprintf(os.Stderr, "manifest and compiles its entry module.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lark -i                      # Start interactive mode\n")
		fmt.Fprintf(os.Stderr, "  lark -disasm main.lark       # Compile and show bytecode\n")
		fmt.Fprintf(os.Stderr, "  lark -o main.lkbc main.lark  # Write a bytecode artifact\n")
		fmt.Fprintf(os.Stderr, "  lark -e '1 + 2' -disasm      # Compile one expression\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if *interactive {
		runREPL()
		return
	}

	if *expr != "" {
		fn := compileSource("(script)", *expr, true)
		if fn == nil {
			os.Exit(1)
		}
		if *disasm {
			fmt.Print(bytecode.Disassemble(fn))
		}
		return
	}

	path, mf, err := resolveScript(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *tokens {
		if err := dumpTokens(path, *moduleName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	name := *moduleName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".lark")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	source := string(data)

	fn, err := compileCached(mf, name, source, *noCache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if fn == nil {
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(bytecode.Disassemble(fn))
	}
	if *check {
		return
	}

	out := *output
	if out == "" && mf != nil {
		out = mf.Build.Output
		if out != "" && !filepath.IsAbs(out) {
			out = filepath.Join(mf.Dir, out)
		}
	}
	if out != "" {
		if err := writeArtifact(out, fn); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Infof("wrote %s", out)
	}
}

// resolveScript picks the script to compile: an explicit argument, or the
// manifest entry module when run inside a project.
func resolveScript(args []string) (string, *manifest.Manifest, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, err
	}
	mf, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return "", nil, err
	}

	if len(args) > 0 {
		return args[0], mf, nil
	}
	if mf == nil {
		return "", nil, errors.New("no script given and no lark.toml found")
	}
	entry := mf.EntryPath()
	if _, err := os.Stat(entry); err != nil {
		return "", nil, fmt.Errorf("entry module %s: %w", entry, err)
	}
	return entry, mf, nil
}

// compileCached compiles source, going through the project's artifact cache
// when the manifest enables it.
func compileCached(mf *manifest.Manifest, name, source string, noCache bool) (*bytecode.Fn, error) {
	if mf == nil || !mf.Build.Cache || noCache {
		return compileSource(name, source, false), nil
	}

	c, err := cache.Open(mf.CachePath())
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if fn, err := c.Get(source); err == nil {
		log.Debugf("cache hit for %s", name)
		return fn, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}

	fn := compileSource(name, source, false)
	if fn == nil {
		return nil, nil
	}
	if err := c.Put(name, source, fn); err != nil {
		log.Warningf("cannot cache %s: %s", name, err.Error())
	}
	return fn, nil
}

func compileSource(name, source string, isExpression bool) *bytecode.Fn {
	return compiler.Compile(compiler.Config{
		ModuleName:   name,
		Reporter:     compiler.WriteReporter{W: os.Stderr},
		PrintErrors:  true,
		IsExpression: isExpression,
	}, source)
}

func dumpTokens(path, moduleName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := moduleName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".lark")
	}

	toks := compiler.Tokenize(name, string(data), compiler.WriteReporter{W: os.Stderr})
	for _, tok := range toks {
		if tok.Type == compiler.TokenLine {
			fmt.Printf("%4d  LINE\n", tok.Line)
			continue
		}
		fmt.Printf("%4d  %-14s %q\n", tok.Line, tok.Type, tok.Lexeme)
	}
	return nil
}

// writeArtifact serializes fn and writes it atomically next to its final
// location.
func writeArtifact(path string, fn *bytecode.Fn) error {
	data, err := bytecode.MarshalFn(fn)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func runREPL() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".lark_history"),
		InterruptPrompt: "^C",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("Lark compiler (type 'exit' to quit)")

	// Top-level variables persist across inputs so definitions can refer to
	// earlier ones.
	module := compiler.NewCoreModule("(repl)")
	reporter := compiler.WriteReporter{W: os.Stderr}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		// Try it as an expression first; fall back to definitions so that
		// var and class statements work too. Each attempt compiles against
		// a scratch copy of the module so a failed input cannot leave
		// implicit declarations behind, and the copy becomes the module
		// once the compile succeeds.
		scratch := module.Copy()
		fn := compiler.Compile(compiler.Config{
			Module:       scratch,
			IsExpression: true,
		}, input)
		if fn == nil {
			scratch = module.Copy()
			fn = compiler.Compile(compiler.Config{
				Module:      scratch,
				Reporter:    reporter,
				PrintErrors: true,
			}, input)
		}
		if fn == nil {
			continue
		}
		module = scratch
		fmt.Print(bytecode.Disassemble(fn))
	}
	fmt.Println()
}
