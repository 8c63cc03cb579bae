package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

func analyze(t *testing.T, unit *ast.Node) (*mir.Module, *diag.Sink) {
	t.Helper()
	ast.Bind(unit)
	sink := diag.NewSink(true)
	m := mir.NewModule("test")
	mir.NewBuilder(m, sink).BuildUnit(unit)
	New(m, sink, nil).Run()
	return m, sink
}

func s32() *ast.Node { return ast.Ident("s32") }

func eachInstr(m *mir.Module, fn func(*mir.Instr)) {
	walk := func(b *mir.Block) {
		for i := b.First(); i != nil; i = i.Next {
			fn(i)
		}
	}
	walk(m.Global)
	for _, f := range m.Fns() {
		for _, blk := range f.Blocks {
			walk(blk)
		}
	}
}

func messages(sink *diag.Sink) string {
	var sb strings.Builder
	for _, d := range sink.Diagnostics() {
		sb.WriteString(d.Message)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Every successfully analyzed instruction has a non-nil value type and the
// analyzed flag set.
func TestAnalyzedInstructionsAreTyped(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("add", ast.FnType(s32(), ast.Param("a", s32()), ast.Param("b", s32())), ast.Block(
			ast.Ret(ast.Bin(ast.OpAdd, ast.Ident("a"), ast.Ident("b"))),
		)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("x", nil, ast.CallExpr(ast.Ident("add"), ast.IntLit(2), ast.IntLit(3))),
			ast.Ret(ast.Ident("x")),
		)),
	)
	m, sink := analyze(t, unit)
	require.False(t, sink.HasErrors(), messages(sink))

	eachInstr(m, func(i *mir.Instr) {
		require.True(t, i.Analyzed, "%s not analyzed", i)
		require.NotNil(t, i.Value.Type, "%s has no value type", i)
	})
}

// Re-running analysis over an already-analyzed module is a no-op.
func TestAnalysisIdempotent(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(ast.Ret(ast.IntLit(7)))),
	)
	m, sink := analyze(t, unit)
	require.False(t, sink.HasErrors())

	refs := map[uint64]int32{}
	eachInstr(m, func(i *mir.Instr) { refs[i.ID] = i.RefCount })

	New(m, sink, nil).Run()
	require.False(t, sink.HasErrors())
	eachInstr(m, func(i *mir.Instr) {
		require.Equal(t, refs[i.ID], i.RefCount, "%s ref count changed on re-analysis", i)
	})
}

// A reference to a declaration that only appears later parks its flatten and
// resumes once the declaration is provided.
func TestForwardReferenceResumes(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("late"), ast.IntLit(20))),
		)),
		ast.FnDecl("late", ast.FnType(s32(), ast.Param("x", s32())), ast.Block(
			ast.Ret(ast.Bin(ast.OpMul, ast.Ident("x"), ast.IntLit(2))),
		)),
	)
	m, sink := analyze(t, unit)
	require.False(t, sink.HasErrors(), messages(sink))

	var call *mir.Instr
	mainFn, _ := m.GetFn("main")
	for _, blk := range mainFn.Blocks {
		for i := blk.First(); i != nil; i = i.Next {
			if i.Kind == mir.KindCall {
				call = i
			}
		}
	}
	require.NotNil(t, call)
	require.True(t, call.Analyzed)
	require.Equal(t, mirtype.KindInt, call.Value.Type.Kind, "call result bound to late's return type")
}

func TestUnknownSymbol(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(ast.Ret(ast.Ident("x")))),
	)
	_, sink := analyze(t, unit)
	require.True(t, sink.HasErrors())
	d := sink.Diagnostics()[0]
	require.Equal(t, diag.CodeUnknownSymbol, d.Code)
	require.Contains(t, d.Message, "unknown symbol 'x'")
}

func TestTypeMismatchOnReturn(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(ast.Ret(ast.BoolLit(true)))),
	)
	_, sink := analyze(t, unit)
	require.True(t, sink.HasErrors())
	require.Contains(t, messages(sink), "no implicit cast for types 'bool' and 's32'")
}

// Removing the final return from a non-void function produces the
// missing-return error; the builder's implicit void return does not satisfy a
// non-void signature.
func TestMissingReturn(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("f", ast.FnType(s32(), ast.Param("x", s32())), ast.Block(
			ast.If(ast.Bin(ast.OpGt, ast.Ident("x"), ast.IntLit(0)),
				ast.Block(ast.Ret(ast.IntLit(1))),
				nil),
			// Falls off the end when x <= 0.
		)),
	)
	_, sink := analyze(t, unit)
	require.True(t, sink.HasErrors())
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Code == diag.CodeMissingReturn {
			found = true
		}
	}
	require.True(t, found, messages(sink))
}

// Both branches returning leaves the merge block unreachable; that must NOT
// trip the missing-return check.
func TestNoFalseMissingReturn(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("f", ast.FnType(s32(), ast.Param("x", s32())), ast.Block(
			ast.If(ast.Bin(ast.OpGt, ast.Ident("x"), ast.IntLit(0)),
				ast.Block(ast.Ret(ast.IntLit(1))),
				ast.Block(ast.Ret(ast.IntLit(2)))),
		)),
	)
	_, sink := analyze(t, unit)
	require.False(t, sink.HasErrors(), messages(sink))
}

func TestInvalidArgCount(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("f", ast.FnType(s32(), ast.Param("a", s32())), ast.Block(
			ast.Ret(ast.Ident("a")),
		)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("f"), ast.IntLit(1), ast.IntLit(2))),
		)),
	)
	_, sink := analyze(t, unit)
	require.True(t, sink.HasErrors())
	require.Equal(t, diag.CodeInvalidArgCount, sink.Diagnostics()[0].Code)
}

// Comptime constant folding happens during analysis: the initializer of a
// global folds to its final value.
func TestComptimeFolding(t *testing.T) {
	unit := ast.Unit(
		ast.VarDecl("g", nil, ast.Bin(ast.OpAdd, ast.IntLit(2), ast.Bin(ast.OpMul, ast.IntLit(3), ast.IntLit(4)))),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(ast.Ret(ast.Ident("g")))),
	)
	m, sink := analyze(t, unit)
	require.False(t, sink.HasErrors(), messages(sink))

	var g *mir.Instr
	for i := m.Global.First(); i != nil; i = i.Next {
		if i.Kind == mir.KindDeclVar {
			g = i
		}
	}
	require.NotNil(t, g)
	require.True(t, g.Value.IsComptime)
	require.Equal(t, int64(14), g.Value.Int)
}

// The cast table picks the documented opcode per (src, dst, signedness,
// width) combination.
func TestCastOpSelection(t *testing.T) {
	a := mirtype.NewArena()
	cases := []struct {
		src, dst *mirtype.Type
		want     mir.CastOp
	}{
		{a.Int(8, true), a.Int(32, true), mir.CastSext},
		{a.Int(8, false), a.Int(32, false), mir.CastZext},
		{a.Int(64, true), a.Int(16, true), mir.CastTrunc},
		{a.Real(64), a.Real(32), mir.CastFptrunc},
		{a.Real(32), a.Real(64), mir.CastFpext},
		{a.Real(64), a.Int(32, true), mir.CastFptosi},
		{a.Real(64), a.Int(32, false), mir.CastFptoui},
		{a.Int(32, true), a.Real(64), mir.CastSitofp},
		{a.Int(32, false), a.Real(64), mir.CastUitofp},
		{a.Ptr(a.Int(8, false)), a.Int(64, false), mir.CastPtrtoint},
		{a.Int(64, false), a.Ptr(a.Int(8, false)), mir.CastInttoptr},
		{a.Ptr(a.Int(8, false)), a.Ptr(a.Int(32, true)), mir.CastBitcast},
		{a.Null, a.Ptr(a.Int(8, false)), mir.CastBitcast},
		{a.Int(32, true), a.Int(32, true), mir.CastNone},
	}
	for _, c := range cases {
		require.Equal(t, c.want, selectCastOp(c.src, c.dst), "%s -> %s", c.src, c.dst)
	}
}

// Warnings for dead statements come once per function, at the first
// unreachable statement.
func TestUnreachableWarning(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("f", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.IntLit(1)),
			ast.VarDecl("x", nil, ast.IntLit(2)),
			ast.VarDecl("y", nil, ast.IntLit(3)),
		)),
	)
	ast.Bind(unit)
	sink := diag.NewSink(false)
	m := mir.NewModule("test")
	mir.NewBuilder(m, sink).BuildUnit(unit)
	New(m, sink, nil).Run()

	warnings := 0
	for _, d := range sink.Diagnostics() {
		if d.Severity == diag.SeverityWarning && strings.Contains(d.Message, "unreachable") {
			warnings++
		}
	}
	require.Equal(t, 1, warnings)
	require.False(t, sink.HasErrors())
}
