package vm_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/vm"
)

type yamlExpr struct {
	Int *int64    `yaml:"int"`
	Op  string    `yaml:"op"`
	Lhs *yamlExpr `yaml:"lhs"`
	Rhs *yamlExpr `yaml:"rhs"`
}

type yamlScenario struct {
	Name   string   `yaml:"name"`
	Expect int64    `yaml:"expect"`
	Expr   yamlExpr `yaml:"expr"`
}

type yamlFixture struct {
	Scenarios []yamlScenario `yaml:"scenarios"`
}

var yamlOps = map[string]ast.BinOp{
	"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod,
	"<<": ast.OpShl, ">>": ast.OpShr, "&": ast.OpBitAnd, "|": ast.OpBitOr, "^": ast.OpBitXor,
}

func (e *yamlExpr) node(t *testing.T) *ast.Node {
	t.Helper()
	if e.Int != nil {
		return ast.IntLit(*e.Int)
	}
	op, ok := yamlOps[e.Op]
	require.True(t, ok, "unknown operator %q", e.Op)
	require.NotNil(t, e.Lhs)
	require.NotNil(t, e.Rhs)
	return ast.Bin(op, e.Lhs.node(t), e.Rhs.node(t))
}

func TestYAMLScenarios(t *testing.T) {
	raw, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)

	var fixture yamlFixture
	require.NoError(t, yaml.Unmarshal(raw, &fixture))
	require.NotEmpty(t, fixture.Scenarios)

	for _, sc := range fixture.Scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			// Route the expression through a variable so the binop executes on
			// the VM instead of folding entirely in the analyzer, then again as
			// a pure comptime fold; both must agree with the fixture.
			runtimeUnit := ast.Unit(
				ast.FnDecl("main", ast.FnType(s32()), ast.Block(
					ast.VarDecl("zero", nil, ast.IntLit(0)),
					ast.Ret(ast.Bin(ast.OpAdd, ast.Ident("zero"), sc.Expr.node(t))),
				)),
			)
			out, ok, _ := runMain(t, runtimeUnit)
			require.True(t, ok)
			require.Contains(t, out, fmt.Sprintf("state: %d", sc.Expect))

			comptimeUnit := ast.Unit(
				ast.FnDecl("main", ast.FnType(s32()), ast.Block(
					ast.Ret(sc.Expr.node(t)),
				)),
			)
			out, ok, _ = runMain(t, comptimeUnit)
			require.True(t, ok)
			require.Contains(t, out, fmt.Sprintf("state: %d", sc.Expect))
		})
	}
}

// The VM honors a caller-provided stack size and aborts rather than writing
// past it.
func TestConfiguredStackSize(t *testing.T) {
	unit := ast.Unit(
		ast.FnDecl("grow", ast.FnType(s32(), ast.Param("n", s32())), ast.Block(
			ast.If(ast.Bin(ast.OpLte, ast.Ident("n"), ast.IntLit(0)),
				ast.Block(ast.Ret(ast.IntLit(0))), nil),
			ast.Ret(ast.CallExpr(ast.Ident("grow"), ast.Bin(ast.OpSub, ast.Ident("n"), ast.IntLit(1)))),
		)),
		ast.FnDecl("main", ast.FnType(s32()), ast.Block(
			ast.Ret(ast.CallExpr(ast.Ident("grow"), ast.IntLit(1000000))),
		)),
	)
	m, sink := compile(t, unit)
	require.False(t, sink.HasErrors())

	opts := config.Default()
	opts.StackSize = 16 << 10
	machine := vm.New(m, sink, opts)
	machine.Out = nullWriter{}
	require.False(t, machine.RunMain())
	require.True(t, machine.Stack().Aborted)
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
