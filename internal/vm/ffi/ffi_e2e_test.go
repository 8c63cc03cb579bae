//go:build linux && cgo

package ffi_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/analyzer"
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/vm"
	"github.com/mirlang/mirc/internal/vm/ffi"
)

func compileWithBridge(t *testing.T, unit *ast.Node) (*vm.VM, *bytes.Buffer, *diag.Sink) {
	t.Helper()
	ast.Bind(unit)
	sink := diag.NewSink(true)
	m := mir.NewModule("ffi-test")
	mir.NewBuilder(m, sink).BuildUnit(unit)
	analyzer.New(m, sink, nil).Run()
	require.False(t, sink.HasErrors())

	machine := vm.New(m, sink, config.Default())
	out := &bytes.Buffer{}
	machine.Out = out

	bridge, err := ffi.NewBridge(nil)
	require.NoError(t, err)
	bridge.Host = machine
	machine.Bridge = bridge
	return machine, out, sink
}

// Calling libc's abs through the bridge: resolved from the process image,
// marshalled through the integer path, result re-encoded as s32.
func TestExternAbs(t *testing.T) {
	s32 := func() *ast.Node { return ast.Ident("s32") }
	machine, out, _ := compileWithBridge(t, ast.Unit(
		ast.ExternFn("abs", ast.FnType(s32(), ast.Param("x", s32())), ""),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("abs"), ast.IntLit(-41))),
		)),
	))
	require.True(t, machine.RunMain())
	require.Contains(t, out.String(), "state: 41")
}

// puts("hi".ptr) resolves against the loaded libraries and
// returns a non-negative value.
func TestExternPuts(t *testing.T) {
	s32 := func() *ast.Node { return ast.Ident("s32") }
	machine, out, _ := compileWithBridge(t, ast.Unit(
		ast.ExternFn("puts", ast.FnType(s32(), ast.Param("s", ast.PtrType(ast.Ident("u8")))), ""),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.VarDecl("rc", nil, ast.CallExpr(ast.Ident("puts"), ast.Member(ast.StringLit("hi"), "ptr"))),
			ast.If(ast.Bin(ast.OpLt, ast.Ident("rc"), ast.IntLit(0)),
				ast.Block(ast.Ret(ast.IntLit(1))), nil),
			ast.Ret(ast.IntLit(0)),
		)),
	))
	require.True(t, machine.RunMain())
	require.Contains(t, out.String(), "state: 0")
}

// An extern name that exists nowhere reports symbol-not-found and aborts
// execution rather than crashing.
func TestExternSymbolNotFound(t *testing.T) {
	s32 := func() *ast.Node { return ast.Ident("s32") }
	machine, out, sink := compileWithBridge(t, ast.Unit(
		ast.ExternFn("definitely_not_a_real_symbol_xyz", ast.FnType(s32()), ""),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("definitely_not_a_real_symbol_xyz"))),
		)),
	))
	require.False(t, machine.RunMain())
	require.Contains(t, out.String(), "external symbol 'definitely_not_a_real_symbol_xyz' not found")
	require.True(t, sink.HasErrors())
}

func TestLibraryNotFound(t *testing.T) {
	_, err := ffi.NewBridge([]string{"libdoesnotexist-mirc.so"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "library 'libdoesnotexist-mirc.so' not found")
}
