package driver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
)

func s32() *ast.Node { return ast.Ident("s32") }

func unitFn(fnName string, ret int64) *ast.Node {
	u := ast.Unit(
		ast.FnDecl(fnName, ast.FnType(s32()), ast.Block(ast.Ret(ast.IntLit(ret)))),
	)
	ast.Bind(u)
	return u
}

func TestAnalyzeAllSerial(t *testing.T) {
	sink := diag.NewSink(true)
	opts := config.Default()
	m := AnalyzeAll("serial", []*ast.Node{unitFn("a", 1), unitFn("b", 2)}, opts, sink, nil)
	require.False(t, sink.HasErrors())

	_, ok := m.GetFn("a")
	require.True(t, ok)
	_, ok = m.GetFn("b")
	require.True(t, ok)
}

// Parallel seeding produces the same analyzed module as a serial run: every
// function present, no diagnostics, declarations in unit order.
func TestAnalyzeAllParallel(t *testing.T) {
	units := make([]*ast.Node, 8)
	names := []string{"f0", "f1", "f2", "f3", "f4", "f5", "f6", "f7"}
	for i, n := range names {
		units[i] = unitFn(n, int64(i))
	}
	sink := diag.NewSink(true)
	opts := config.Default()
	opts.Threads = 4
	m := AnalyzeAll("parallel", units, opts, sink, nil)
	require.False(t, sink.HasErrors())

	for _, n := range names {
		fn, ok := m.GetFn(n)
		require.True(t, ok, "missing %s", n)
		require.True(t, fn.Analyzed())
	}

	// Unit order survives the splice: FnProtos appear in seed order.
	var protoOrder []string
	for i := m.Global.First(); i != nil; i = i.Next {
		if fn := i.Data.Fn; fn != nil {
			protoOrder = append(protoOrder, fn.Name)
		}
	}
	require.Equal(t, names, protoOrder)
}

// Parallel workers report through private sinks that merge into the main one.
func TestParallelDiagnosticsMerge(t *testing.T) {
	bad := ast.Unit(
		// The duplicate parameter is reported by the builder, into the worker's
		// private sink; the analyzer reports nothing for this unit.
		ast.FnDecl("broken", ast.FnType(s32(), ast.Param("a", s32()), ast.Param("a", s32())),
			ast.Block(ast.Ret(ast.IntLit(0)))),
	)
	ast.Bind(bad)
	units := []*ast.Node{unitFn("fine", 0), bad, unitFn("alsofine", 1)}

	sink := diag.NewSink(true)
	opts := config.Default()
	opts.Threads = 3
	AnalyzeAll("merge", units, opts, sink, nil)
	require.True(t, sink.HasErrors())
}

type fakeRunner struct {
	ranMain, ranTests bool
	failTests         int
}

func (f *fakeRunner) RunMain() bool { f.ranMain = true; return true }
func (f *fakeRunner) RunTests() int { f.ranTests = true; return f.failTests }

// Nothing executes when analysis reported errors.
func TestRunSuppressedOnErrors(t *testing.T) {
	sink := diag.NewSink(true)
	sink.Error(diag.CodeUnknownSymbol, ast.Loc{}, diag.CursorWord, "unknown symbol 'x'")

	opts := config.Default()
	opts.Run = true
	r := &fakeRunner{}
	err := Run(nil, sink, opts, func() Runner { return r })
	require.Error(t, err)
	require.False(t, r.ranMain)
}

func TestRunExecutesMainAndTests(t *testing.T) {
	sink := diag.NewSink(true)
	opts := config.Default()
	opts.Run = true
	opts.RunTests = true
	r := &fakeRunner{}
	require.NoError(t, Run(nil, sink, opts, func() Runner { return r }))
	require.True(t, r.ranMain)
	require.True(t, r.ranTests)

	failing := &fakeRunner{failTests: 2}
	opts.Run = false
	require.Error(t, Run(nil, sink, opts, func() Runner { return failing }))
}
