package ffi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/mirtype"
)

func TestSignature(t *testing.T) {
	a := mirtype.NewArena()
	arg := func(t *mirtype.Type) *mirtype.Arg { return &mirtype.Arg{Type: t} }

	cases := []struct {
		typ  *mirtype.Type
		want string
	}{
		{a.Fn([]*mirtype.Arg{arg(a.Int(32, true)), arg(a.Int(32, true))}, a.Int(32, true), false), "ii)i"},
		{a.Fn(nil, a.Void, false), ")v"},
		{a.Fn([]*mirtype.Arg{arg(a.Ptr(a.Int(8, false)))}, a.Int(32, true), false), "p)i"},
		{a.Fn([]*mirtype.Arg{arg(a.Real(32)), arg(a.Real(64))}, a.Real(64), false), "fd)d"},
		{a.Fn([]*mirtype.Arg{arg(a.Int(8, true)), arg(a.Int(8, false))}, a.Void, false), "cC)v"},
		{a.Fn([]*mirtype.Arg{arg(a.Int(16, true)), arg(a.Int(16, false))}, a.Void, false), "sS)v"},
		{a.Fn([]*mirtype.Arg{arg(a.Int(64, true)), arg(a.Int(64, false))}, a.Void, false), "lL)v"},
		{a.Fn([]*mirtype.Arg{arg(a.Bool)}, a.Bool, false), "B)B"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Signature(c.typ))
	}
}

// Struct arguments expand recursively into their field tags.
func TestSignatureStructExpansion(t *testing.T) {
	a := mirtype.NewArena()
	s := a.NewStructFwdDecl("pair")
	a.CompleteStruct(s, []*mirtype.Member{
		{Name: "x", Type: a.Int(32, true)},
		{Name: "y", Type: a.Ptr(a.Int(8, false))},
	}, false, nil)

	fn := a.Fn([]*mirtype.Arg{{Type: s}}, a.Void, false)
	require.Equal(t, "ip)v", Signature(fn))
}

func TestSignatureEnumUsesBase(t *testing.T) {
	a := mirtype.NewArena()
	e := a.NewEnum("color", a.Int(32, true), nil)
	fn := a.Fn([]*mirtype.Arg{{Type: e}}, e, false)
	require.Equal(t, "i)i", Signature(fn))
}
