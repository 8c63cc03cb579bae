package mirtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStructuralEquality(t *testing.T) {
	a := NewArena()

	// Scalars intern: structurally equal types are the same pointer.
	require.Same(t, a.Int(32, true), a.Int(32, true))
	require.NotSame(t, a.Int(32, true), a.Int(32, false))
	require.NotSame(t, a.Int(32, true), a.Int(64, true))
	require.Same(t, a.Real(64), a.Real(64))

	require.True(t, Equal(a.Ptr(a.Int(8, false)), a.Ptr(a.Int(8, false))))
	require.False(t, Equal(a.Ptr(a.Int(8, false)), a.Ptr(a.Int(8, true))))

	require.True(t, Equal(a.Array(a.Int(32, true), 3), a.Array(a.Int(32, true), 3)))
	require.False(t, Equal(a.Array(a.Int(32, true), 3), a.Array(a.Int(32, true), 4)))

	fn1 := a.Fn([]*Arg{{Name: "x", Type: a.Int(32, true)}}, a.Int(32, true), false)
	fn2 := a.Fn([]*Arg{{Name: "y", Type: a.Int(32, true)}}, a.Int(32, true), false)
	require.True(t, Equal(fn1, fn2), "function types compare by arg/return types, not names")
	fn3 := a.Fn([]*Arg{{Type: a.Int(32, true)}}, a.Void, false)
	require.False(t, Equal(fn1, fn3))
}

func TestStructEnumIdentity(t *testing.T) {
	a := NewArena()
	members := func() []*Member {
		return []*Member{{Name: "x", Type: a.Int(32, true)}, {Name: "y", Type: a.Int(32, true)}}
	}
	s1 := a.NewStructFwdDecl("Point")
	a.CompleteStruct(s1, members(), false, nil)
	s2 := a.NewStructFwdDecl("Point")
	a.CompleteStruct(s2, members(), false, nil)

	// Structurally identical but distinct declarations: identity comparison.
	require.False(t, Equal(s1, s2))
	require.True(t, Equal(s1, s1))

	e1 := a.NewEnum("Color", a.Int(32, true), []*Variant{{Name: "red"}})
	e2 := a.NewEnum("Color", a.Int(32, true), []*Variant{{Name: "red"}})
	require.False(t, Equal(e1, e2))
}

func TestEqualTypesShareLayout(t *testing.T) {
	a := NewArena()
	pairs := [][2]*Type{
		{a.Int(8, true), a.Int(8, true)},
		{a.Int(64, false), a.Int(64, false)},
		{a.Real(32), a.Real(32)},
		{a.Ptr(a.Bool), a.Ptr(a.Bool)},
		{a.Array(a.Int(16, true), 5), a.Array(a.Int(16, true), 5)},
		{a.Slice(a.Real(64)), a.Slice(a.Real(64))},
	}
	for _, p := range pairs {
		require.True(t, Equal(p[0], p[1]))
		require.Equal(t, p[0].StoreSize, p[1].StoreSize)
		require.Equal(t, p[0].Alignment, p[1].Alignment)
	}
}

func TestStructLayout(t *testing.T) {
	a := NewArena()
	s := a.NewStructFwdDecl("Mixed")
	m := []*Member{
		{Name: "a", Type: a.Int(8, false)},
		{Name: "b", Type: a.Int(32, true)},
		{Name: "c", Type: a.Int(8, false)},
		{Name: "d", Type: a.Int(64, true)},
	}
	a.CompleteStruct(s, m, false, nil)

	require.Equal(t, int32(0), m[0].Offset)
	require.Equal(t, int32(4), m[1].Offset, "b aligns to 4")
	require.Equal(t, int32(8), m[2].Offset)
	require.Equal(t, int32(16), m[3].Offset, "d aligns to 8")
	require.Equal(t, uint64(24), s.StoreSize)
	require.Equal(t, int32(8), s.Alignment)
	require.True(t, s.StructComplete)

	packed := a.NewStructFwdDecl("Packed")
	pm := []*Member{
		{Name: "a", Type: a.Int(8, false)},
		{Name: "b", Type: a.Int(32, true)},
	}
	a.CompleteStruct(packed, pm, true, nil)
	require.Equal(t, int32(1), pm[1].Offset)
	require.Equal(t, uint64(5), packed.StoreSize)
}

func TestStructBaseLayout(t *testing.T) {
	a := NewArena()
	base := a.NewStructFwdDecl("Base")
	a.CompleteStruct(base, []*Member{{Name: "id", Type: a.Int(64, true)}}, false, nil)

	derived := a.NewStructFwdDecl("Derived")
	dm := []*Member{{Name: "x", Type: a.Int(32, true)}}
	a.CompleteStruct(derived, dm, false, base)

	require.Equal(t, int32(8), dm[0].Offset, "members start after the base struct")
	require.Equal(t, base, derived.StructBase)
}

func TestSliceElemAt(t *testing.T) {
	a := NewArena()
	s := a.Slice(a.Int(32, true))
	require.Equal(t, uint64(16), s.StoreSize)
	require.Equal(t, Usize.Kind, s.ElemAt(SliceLenIndex).Kind)
	require.Equal(t, KindPtr, s.ElemAt(SlicePtrIndex).Kind)
}

func TestTypeString(t *testing.T) {
	a := NewArena()
	require.Equal(t, "s32", a.Int(32, true).String())
	require.Equal(t, "u8", a.Int(8, false).String())
	require.Equal(t, "f64", a.Real(64).String())
	require.Equal(t, "*bool", a.Ptr(a.Bool).String())
	require.Equal(t, "[3]s32", a.Array(a.Int(32, true), 3).String())
	require.Equal(t, "fn(s32, s32) s32",
		a.Fn([]*Arg{{Type: a.Int(32, true)}, {Type: a.Int(32, true)}}, a.Int(32, true), false).String())
}
