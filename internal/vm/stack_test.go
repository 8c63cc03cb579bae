package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// Round-trip: for every primitive scalar type and a sample of values in its
// range, reading back a pushed value reproduces it exactly.
func TestPushReadRoundTrip(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(4096, segStack, false)

	intCases := []struct {
		typ    *mirtype.Type
		values []int64
	}{
		{a.Int(8, true), []int64{-128, -1, 0, 1, 127}},
		{a.Int(8, false), []int64{0, 1, 255}},
		{a.Int(16, true), []int64{-32768, 0, 32767}},
		{a.Int(16, false), []int64{0, 65535}},
		{a.Int(32, true), []int64{-2147483648, -7, 0, 2147483647}},
		{a.Int(32, false), []int64{0, 4294967295}},
		{a.Int(64, true), []int64{-9223372036854775808, 0, 9223372036854775807}},
		{a.Int(64, false), []int64{0, -1}}, // -1 round-trips as all-ones
		{a.Bool, []int64{0, 1}},
	}
	for _, c := range intCases {
		for _, v := range c.values {
			buf := make([]byte, alignedSize(c.typ))
			encodeScalar(buf, mirtype.Value{Int: v}, c.typ)
			addr := s.Push(buf, c.typ)
			require.NotZero(t, addr)

			var got mirtype.Value
			mir.ReadValue(&got, s.buf[decodeOff(addr):], c.typ)
			require.Equal(t, v, got.Int, "%s value %d", c.typ, v)
			s.Pop(c.typ)
		}
	}

	for _, bits := range []int32{32, 64} {
		typ := a.Real(bits)
		for _, v := range []float64{0, -1.5, 3.25, 1e10} {
			buf := make([]byte, alignedSize(typ))
			encodeScalar(buf, mirtype.Value{Real: v}, typ)
			addr := s.Push(buf, typ)
			var got mirtype.Value
			mir.ReadValue(&got, s.buf[decodeOff(addr):], typ)
			require.Equal(t, v, got.Real)
			s.Pop(typ)
		}
	}
	require.Zero(t, s.Used(), "every push was popped")
}

// Pop frees the aligned size but the contents stay readable until the next
// push.
func TestPopLeavesContentsReadable(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(128, segStack, false)
	typ := a.Int(64, true)
	buf := make([]byte, 8)
	encodeScalar(buf, mirtype.Value{Int: 42}, typ)
	addr := s.Push(buf, typ)
	freed := s.Pop(typ)
	require.Equal(t, addr, freed)

	var got mirtype.Value
	mir.ReadValue(&got, s.buf[decodeOff(freed):], typ)
	require.Equal(t, int64(42), got.Int)
}

func TestGuardWordValidation(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(128, segStack, true)
	typ := a.Int(32, true)
	buf := make([]byte, 8)
	addr := s.Push(buf, typ)
	require.NotZero(t, addr)
	require.NotPanics(t, func() { s.Pop(typ) })

	s.Push(buf, typ)
	// Clobber the shadow word; the next pop must panic.
	s.buf[s.top-1] ^= 0xff
	require.Panics(t, func() { s.Pop(typ) })
}

func TestFrameRestore(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(1024, segStack, false)
	typ := a.Int(64, true)

	s.PushFrame(nil, nil)
	outer := s.Frame()
	buf := make([]byte, 8)
	s.Push(buf, typ)
	topBefore := s.Used()

	call := &mir.Instr{ID: 99}
	s.PushFrame(call, nil)
	require.NotSame(t, outer, s.Frame())
	s.Push(buf, typ)
	s.Push(buf, typ)

	caller := s.PopFrame()
	require.Same(t, call, caller)
	require.Same(t, outer, s.Frame())
	require.Equal(t, topBefore, s.Used(), "frame pop restores the prior top")
}

func TestAllocVarFrameRelative(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(1024, segStack, false)
	s.PushFrame(nil, nil)

	v1 := &mir.Var{Type: a.Int(32, true)}
	v2 := &mir.Var{Type: a.Int(64, true)}
	s.AllocVar(v1)
	s.AllocVar(v2)
	require.Equal(t, int64(0), v1.FrameOffset)
	require.Equal(t, int64(8), v2.FrameOffset, "allocations are 8-byte aligned")
}

func TestStackOverflowAborts(t *testing.T) {
	a := mirtype.NewArena()
	s := NewStack(16, segStack, false)
	typ := a.Int(64, true)
	buf := make([]byte, 8)
	require.NotZero(t, s.Push(buf, typ))
	require.NotZero(t, s.Push(buf, typ))
	require.Zero(t, s.Push(buf, typ))
	require.True(t, s.Aborted)
}
