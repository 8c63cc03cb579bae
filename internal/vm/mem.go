package vm

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// mem returns a writable window of n bytes at the encoded pointer p, or nil if
// p is null or out of range (the caller faults).
func (vm *VM) mem(p uint64, n int) []byte {
	if p == 0 || n < 0 {
		return nil
	}
	off := decodeOff(p)
	var buf []byte
	switch decodeSeg(p) {
	case segStack:
		buf = vm.stack.buf
	case segScratch:
		buf = vm.scratch.buf
	case segGlobal:
		buf = vm.globals
	case segRodata:
		buf = vm.rodata
	case segHost:
		// A raw address handed back by an extern call.
		return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), n)
	default:
		return nil
	}
	if off+n > len(buf) {
		return nil
	}
	return buf[off: off+n]
}

// hostPointer translates an encoded pointer into a real address an extern
// callee can dereference. Valid only for the duration of the call: the backing
// buffers never move, but stack regions are reused after frame pops.
func (vm *VM) hostPointer(p uint64) unsafe.Pointer {
	if p == 0 {
		return nil
	}
	if decodeSeg(p) == segHost {
		return unsafe.Pointer(uintptr(p))
	}
	win := vm.mem(p, 1)
	if win == nil {
		return nil
	}
	return unsafe.Pointer(&win[0])
}

// --- scalar encoding ----------------------------------------------------------

// encodeScalar writes v as a little-endian value of type t into buf, the
// write-side counterpart of mir.ReadValue.
func encodeScalar(buf []byte, v mirtype.Value, t *mirtype.Type) {
	switch t.Kind {
	case mirtype.KindBool:
		buf[0] = byte(v.Int & 1)
	case mirtype.KindInt, mirtype.KindEnum:
		putInt(buf, v.Int, int(t.StoreSize))
	case mirtype.KindReal:
		if t.RealBits == 32 {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.Real)))
		} else {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v.Real))
		}
	case mirtype.KindPtr, mirtype.KindNull:
		binary.LittleEndian.PutUint64(buf, uint64(v.Ptr))
	case mirtype.KindType:
		var id uint64
		if v.TypeV != nil {
			id = v.TypeV.ID()
		}
		binary.LittleEndian.PutUint64(buf, id)
	case mirtype.KindFn:
		var id uint64
		if fn, ok := v.FnV.(*mir.Fn); ok && fn != nil {
			id = fn.ID
		}
		binary.LittleEndian.PutUint64(buf, id)
	}
}

func putInt(buf []byte, v int64, size int) {
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
}

// readInt decodes size bytes as an integer, sign-extending when signed.
func readInt(buf []byte, size int, signed bool) int64 {
	switch size {
	case 1:
		if signed {
			return int64(int8(buf[0]))
		}
		return int64(buf[0])
	case 2:
		u := binary.LittleEndian.Uint16(buf)
		if signed {
			return int64(int16(u))
		}
		return int64(u)
	case 4:
		u := binary.LittleEndian.Uint32(buf)
		if signed {
			return int64(int32(u))
		}
		return int64(u)
	default:
		return int64(binary.LittleEndian.Uint64(buf))
	}
}

func readReal(buf []byte, bits int32) float64 {
	if bits == 32 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}

// CopyComptimeToStack recursively decomposes a comptime value into contiguous
// memory at dst, honoring struct member offsets and array element strides.
func (vm *VM) CopyComptimeToStack(dst []byte, v mirtype.Value, t *mirtype.Type) {
	if t == nil {
		return
	}
	if v.Composite != nil {
		if v.Composite.ZeroInit {
			for i := range dst[:minInt(len(dst), int(t.StoreSize))] {
				dst[i] = 0
			}
			return
		}
		switch t.Kind {
		case mirtype.KindStruct:
			for i, mv := range v.Composite.Members {
				if i >= len(t.StructMembers) {
					break
				}
				m := t.StructMembers[i]
				vm.CopyComptimeToStack(dst[m.Offset:], mv, m.Type)
			}
		case mirtype.KindArray:
			stride := int(t.ElemType.StoreSize)
			for i, ev := range v.Composite.Elements {
				vm.CopyComptimeToStack(dst[i*stride:], ev, t.ElemType)
			}
		}
		return
	}
	encodeScalar(dst, v, t)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
