package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/analyzer"
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
	"github.com/mirlang/mirc/internal/vm"
)

func s32() *ast.Node { return ast.Ident("s32") }

func compile(t *testing.T, unit *ast.Node) (*mir.Module, *diag.Sink) {
	t.Helper()
	ast.Bind(unit)
	sink := diag.NewSink(true)
	m := mir.NewModule("test")
	mir.NewBuilder(m, sink).BuildUnit(unit)
	analyzer.New(m, sink, nil).Run()
	return m, sink
}

func runMain(t *testing.T, unit *ast.Node) (string, bool, *vm.VM) {
	t.Helper()
	m, sink := compile(t, unit)
	require.False(t, sink.HasErrors(), "unexpected analysis errors")
	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out
	ok := machine.RunMain()
	return out.String(), ok, machine
}

func TestRunTrivialMain(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(ast.Ret(ast.IntLit(0)))),
	))
	require.True(t, ok)
	require.Contains(t, out, "execution finished with state: 0")
}

func TestArithmeticPrecedence(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("a", nil, ast.Bin(ast.OpAdd, ast.IntLit(2), ast.Bin(ast.OpMul, ast.IntLit(3), ast.IntLit(4)))),
			ast.Ret(ast.Ident("a")),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 14")
}

func TestFunctionCall(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("add", ast.FnType(s32(), ast.Param("a", s32()), ast.Param("b", s32())), ast.Block(
			ast.Ret(ast.Bin(ast.OpAdd, ast.Ident("a"), ast.Ident("b"))),
		)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("add"), ast.IntLit(2), ast.IntLit(3))),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 5")
}

func TestLoop(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("i", nil, ast.IntLit(0)),
			ast.Loop(ast.Bin(ast.OpLt, ast.Ident("i"), ast.IntLit(3)), ast.Block(
				ast.Assign(ast.Ident("i"), ast.Bin(ast.OpAdd, ast.Ident("i"), ast.IntLit(1))),
			)),
			ast.Ret(ast.Ident("i")),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 3")
}

func TestRecursion(t *testing.T) {
	// fact(5) exercises the frame chain: push/pop frames, argument slots and
	// return-value plumbing across nested activations.
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("fact", ast.FnType(s32(), ast.Param("n", s32())), ast.Block(
			ast.If(ast.Bin(ast.OpLte, ast.Ident("n"), ast.IntLit(1)),
				ast.Block(ast.Ret(ast.IntLit(1))), nil),
			ast.Ret(ast.Bin(ast.OpMul, ast.Ident("n"),
				ast.CallExpr(ast.Ident("fact"), ast.Bin(ast.OpSub, ast.Ident("n"), ast.IntLit(1))))),
		)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("fact"), ast.IntLit(5))),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 120")
}

func TestGlobalVariable(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.VarDecl("g", nil, ast.IntLit(10)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Assign(ast.Ident("g"), ast.Bin(ast.OpAdd, ast.Ident("g"), ast.IntLit(1))),
			ast.Ret(ast.Ident("g")),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 11")
}

func TestShortCircuitSkipsRhs(t *testing.T) {
	// With x = 0 the right-hand side would divide by zero; && must not
	// evaluate it.
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("x", nil, ast.IntLit(0)),
			ast.If(ast.Bin(ast.OpLogAnd,
				ast.Bin(ast.OpNeq, ast.Ident("x"), ast.IntLit(0)),
				ast.Bin(ast.OpGt, ast.Bin(ast.OpDiv, ast.IntLit(10), ast.Ident("x")), ast.IntLit(1))),
				ast.Block(ast.Ret(ast.IntLit(1))), nil),
			ast.Ret(ast.IntLit(0)),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 0")
}

func TestDivisionByZeroAborts(t *testing.T) {
	m, sink := compile(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("x", nil, ast.IntLit(0)),
			ast.Ret(ast.Bin(ast.OpDiv, ast.IntLit(1), ast.Ident("x"))),
		)),
	))
	require.False(t, sink.HasErrors())
	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out
	require.False(t, machine.RunMain())
	require.True(t, machine.Stack().Aborted)
	require.Contains(t, out.String(), "division by zero")
}

func TestArrayOutOfBoundsAborts(t *testing.T) {
	m, sink := compile(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("arr", ast.ArrayType(ast.IntLit(3), s32()), nil),
			ast.ExprStmt(ast.Index(ast.Ident("arr"), ast.IntLit(5))),
			ast.Ret(ast.IntLit(0)),
		)),
	))
	require.False(t, sink.HasErrors())
	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out
	require.False(t, machine.RunMain())
	require.True(t, machine.Stack().Aborted)
	require.Contains(t, out.String(),
		"Array index is out of the bounds! Array index is: 5, but array size is: 3")
}

func TestArrayElementStoreLoad(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("arr", ast.ArrayType(ast.IntLit(3), s32()), nil),
			ast.Assign(ast.Index(ast.Ident("arr"), ast.IntLit(0)), ast.IntLit(7)),
			ast.Assign(ast.Index(ast.Ident("arr"), ast.IntLit(2)), ast.IntLit(30)),
			ast.Ret(ast.Bin(ast.OpAdd,
				ast.Index(ast.Ident("arr"), ast.IntLit(0)),
				ast.Index(ast.Ident("arr"), ast.IntLit(2)))),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 37")
}

func TestStructMembers(t *testing.T) {
	point := ast.StructType(
		ast.MemberDecl("x", s32()),
		ast.MemberDecl("y", s32()),
	)
	out, ok, _ := runMain(t, ast.Unit(
		ast.VarDecl("Point", nil, point),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("p", ast.Ident("Point"), ast.Compound(ast.Ident("Point"), ast.IntLit(3), ast.IntLit(4))),
			ast.Assign(ast.Member(ast.Ident("p"), "y"), ast.IntLit(10)),
			ast.Ret(ast.Bin(ast.OpAdd, ast.Member(ast.Ident("p"), "x"), ast.Member(ast.Ident("p"), "y"))),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 13")
}

func TestPointerDeref(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("x", nil, ast.IntLit(5)),
			ast.VarDecl("p", nil, ast.AddrOf(ast.Ident("x"))),
			ast.Assign(ast.Deref(ast.Ident("p")), ast.IntLit(9)),
			ast.Ret(ast.Ident("x")),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 9")
}

func TestExplicitCast(t *testing.T) {
	out, ok, _ := runMain(t, ast.Unit(
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("x", ast.Ident("s64"), ast.IntLit(300)),
			ast.VarDecl("y", ast.Ident("u8"), ast.Cast(ast.Ident("u8"), ast.Ident("x"))),
			ast.Ret(ast.Cast(s32(), ast.Ident("y"))),
		)),
	))
	require.True(t, ok)
	require.Contains(t, out, "state: 44", "300 truncates to 44 in u8")
}

func TestRunTests(t *testing.T) {
	m, sink := compile(t, ast.Unit(
		ast.TestFn("passes", ast.FnType(ast.Ident("void")), ast.Block(
			ast.VarDecl("x", nil, ast.IntLit(1)),
		)),
		ast.TestFn("faults", ast.FnType(ast.Ident("void")), ast.Block(
			ast.VarDecl("arr", ast.ArrayType(ast.IntLit(2), s32()), nil),
			ast.ExprStmt(ast.Index(ast.Ident("arr"), ast.IntLit(9))),
		)),
	))
	require.False(t, sink.HasErrors())
	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out
	failed := machine.RunTests()
	require.Equal(t, 1, failed)
	require.Contains(t, out.String(), "test 'passes' passed")
	require.Contains(t, out.String(), "test 'faults' FAILED")
}

// Isolation: a fault in one test must not poison the next run's stack state.
func TestRunTestsIsolation(t *testing.T) {
	m, sink := compile(t, ast.Unit(
		ast.TestFn("a_faults", ast.FnType(ast.Ident("void")), ast.Block(
			ast.VarDecl("arr", ast.ArrayType(ast.IntLit(2), s32()), nil),
			ast.ExprStmt(ast.Index(ast.Ident("arr"), ast.IntLit(9))),
		)),
		ast.TestFn("b_passes", ast.FnType(ast.Ident("void")), ast.Block(
			ast.VarDecl("x", nil, ast.IntLit(1)),
		)),
	))
	require.False(t, sink.HasErrors())
	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out
	require.Equal(t, 1, machine.RunTests())
	require.Contains(t, out.String(), "test 'b_passes' passed")
}

func TestExecuteTopLevelCall(t *testing.T) {
	m, sink := compile(t, ast.Unit(
		ast.FnDecl("answer", ast.FnType(s32()), ast.Block(ast.Ret(ast.IntLit(42)))),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("answer"))),
		)),
	))
	require.False(t, sink.HasErrors())

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

	machine := vm.New(m, sink, config.Default())
	machine.Out = &bytes.Buffer{}
	v, ok := machine.ExecuteTopLevelCall(call)
	require.True(t, ok)
	require.Equal(t, int64(42), v.Int)
}

// Round-trip: a comptime struct value copied to memory reads back member by
// member through the struct's offsets.
func TestComptimeStructCopyRoundTrip(t *testing.T) {
	m := mir.NewModule("rt")
	a := m.Types
	s := a.NewStructFwdDecl("Sample")
	members := []*mirtype.Member{
		{Name: "tag", Type: a.Int(8, false)},
		{Name: "count", Type: a.Int(32, true)},
		{Name: "ratio", Type: a.Real(64)},
	}
	a.CompleteStruct(s, members, false, nil)

	val := mirtype.Value{
		Type: s,
		Composite: &mirtype.Composite{
			Members: []mirtype.Value{
				{Type: members[0].Type, Int: 7},
				{Type: members[1].Type, Int: -12345},
				{Type: members[2].Type, Real: 2.5},
			},
		},
	}

	machine := vm.New(m, diag.NewSink(true), config.Default())
	buf := make([]byte, s.StoreSize)
	machine.CopyComptimeToStack(buf, val, s)

	var tag, count, ratio mirtype.Value
	mir.ReadValue(&tag, buf[members[0].Offset:], members[0].Type)
	mir.ReadValue(&count, buf[members[1].Offset:], members[1].Type)
	mir.ReadValue(&ratio, buf[members[2].Offset:], members[2].Type)
	require.Equal(t, int64(7), tag.Int)
	require.Equal(t, int64(-12345), count.Int)
	require.Equal(t, 2.5, ratio.Real)
}

// Nested array-in-struct decomposition honors element strides.
func TestComptimeArrayCopyRoundTrip(t *testing.T) {
	m := mir.NewModule("rt")
	a := m.Types
	arr := a.Array(a.Int(16, true), 4)
	val := mirtype.Value{
		Type: arr,
		Composite: &mirtype.Composite{
			Elements: []mirtype.Value{
				{Type: arr.ElemType, Int: 100},
				{Type: arr.ElemType, Int: -200},
				{Type: arr.ElemType, Int: 300},
				{Type: arr.ElemType, Int: -400},
			},
		},
	}
	machine := vm.New(m, diag.NewSink(true), config.Default())
	buf := make([]byte, arr.StoreSize)
	machine.CopyComptimeToStack(buf, val, arr)

	want := []int64{100, -200, 300, -400}
	for i, w := range want {
		var got mirtype.Value
		mir.ReadValue(&got, buf[i*2:], arr.ElemType)
		require.Equal(t, w, got.Int)
	}
}
