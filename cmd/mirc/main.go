// mirc is the demo driver around the MIR/VM core: it wires the in-memory AST
// surface through the builder, analyzer and virtual machine and exposes the
// compiler's configuration-flag surface. The real front end (lexer, parser)
// and back end (LLVM emission, linking) are external collaborators; without
// them this binary compiles and runs a built-in sample program, which is
// enough to exercise the whole core pipeline end to end.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mirlang/mirc/internal/analyzer"
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/driver"
	"github.com/mirlang/mirc/internal/vm"
	"github.com/mirlang/mirc/internal/vm/ffi"
)

func main() {
	opts := config.Default()
	var optLevel string

	root := &cobra.Command{
		Use:           "mirc [flags]",
		Short:         "MIR analyzer and compile-time virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch optLevel {
			case "none":
				opts.OptLevel = config.OptNone
			case "less":
				opts.OptLevel = config.OptLess
			case "aggressive":
				opts.OptLevel = config.OptAggressive
			default:
				opts.OptLevel = config.OptDefault
			}
			return run(opts)
		},
	}

	fl := root.Flags()
	fl.BoolVar(&opts.PrintAST, "print-ast", false, "set the print-ast option (this driver prints no syntax tree)")
	fl.BoolVar(&opts.EmitMIR, "emit-mir", false, "dump the analyzed MIR listing")
	fl.BoolVar(&opts.EmitLLVM, "emit-llvm", false, "materialize LLVM types for the analyzed module")
	fl.BoolVar(&opts.NoWarn, "no-warn", false, "suppress warnings")
	fl.BoolVar(&opts.Verbose, "verbose", false, "verbose operational logging")
	fl.BoolVar(&opts.Run, "run", true, "execute the entry function after analysis")
	fl.BoolVar(&opts.RunTests, "run-tests", false, "execute every declared test case")
	fl.BoolVar(&opts.SyntaxOnly, "syntax-only", false, "stop after building the syntax tree")
	fl.BoolVar(&opts.DebugBuild, "debug", false, "enable VM stack guard words")
	fl.IntVar(&opts.Threads, "threads", 1, "worker pool size for front-end seeding")
	fl.IntVar(&opts.StackSize, "stack-size", config.DefaultMainStackSize, "VM main stack size in bytes")
	fl.StringSliceVar(&opts.Libs, "lib", nil, "dynamic library to load for extern symbol resolution")
	fl.StringVar(&optLevel, "opt", "default", "optimization level: none|less|default|aggressive")
	normalize(fl)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func normalize(fl *pflag.FlagSet) {
	fl.SortFlags = false
}

func run(opts config.Options) error {
	if opts.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	unit := sampleUnit()
	ast.Bind(unit)
	if opts.SyntaxOnly {
		return nil
	}

	sink := diag.NewSink(opts.NoWarn)

	var llvmTypes *analyzer.LLVMTypes
	if opts.EmitLLVM {
		lt, err := analyzer.NewLLVMTypes("sample")
		if err != nil {
			return err
		}
		defer lt.Dispose()
		llvmTypes = lt
	}

	m := driver.AnalyzeAll("sample", []*ast.Node{unit}, opts, sink, llvmTypes)
	for _, d := range sink.Diagnostics() {
		fmt.Fprint(os.Stderr, diag.Format(d, ""))
	}
	if opts.EmitMIR {
		m.Dump(os.Stdout)
	}

	return driver.Run(m, sink, opts, func() driver.Runner {
		machine := vm.New(m, sink, opts)
		bridge, err := ffi.NewBridge(opts.Libs)
		if err != nil {
			logrus.WithError(err).Warn("dynamic libraries unavailable; extern calls will fail")
		} else {
			bridge.Host = machine
			machine.Bridge = bridge
		}
		return machine
	})
}

// sampleUnit is the built-in program the demo driver runs in place of parsed
// source: a loop, a call and runtime integer arithmetic, touching each corner
// of the core pipeline.
func sampleUnit() *ast.Node {
	s32 := func() *ast.Node { return ast.Ident("s32") }
	return ast.Unit(
		ast.FnDecl("add",
			ast.FnType(s32(), ast.Param("a", s32()), ast.Param("b", s32())),
			ast.Block(
				ast.Ret(ast.Bin(ast.OpAdd, ast.Ident("a"), ast.Ident("b"))),
			),
		),
		ast.FnDecl("main",
			ast.FnType(s32()),
			ast.Block(
				ast.VarDecl("acc", nil, ast.IntLit(0)),
				ast.VarDecl("i", nil, ast.IntLit(0)),
				ast.Loop(ast.Bin(ast.OpLt, ast.Ident("i"), ast.IntLit(5)),
					ast.Block(
						ast.Assign(ast.Ident("acc"), ast.CallExpr(ast.Ident("add"), ast.Ident("acc"), ast.Ident("i"))),
						ast.Assign(ast.Ident("i"), ast.Bin(ast.OpAdd, ast.Ident("i"), ast.IntLit(1))),
					),
				),
				ast.Ret(ast.Ident("acc")),
			),
		),
	)
}
