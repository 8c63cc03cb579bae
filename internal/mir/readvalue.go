package mir

import (
	"encoding/binary"
	"math"

	"github.com/mirlang/mirc/internal/mirtype"
)

// ReadValue interprets src as a little-endian scalar or pointer value of type t
// and writes the decoded result into dst. Composite
// types are not decoded; readers walk their members by offset instead.
func ReadValue(dst *mirtype.Value, src []byte, t *mirtype.Type) {
	dst.Type = t
	if t == nil {
		return
	}
	switch t.Kind {
	case mirtype.KindBool:
		dst.Int = int64(src[0] & 1)
	case mirtype.KindInt:
		dst.Int = readScalarInt(src, int(t.StoreSize), t.IntSigned)
	case mirtype.KindEnum:
		base := t.EnumBase
		signed := base != nil && base.IntSigned
		dst.Int = readScalarInt(src, int(t.StoreSize), signed)
	case mirtype.KindReal:
		if t.RealBits == 32 {
			dst.Real = float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
		} else {
			dst.Real = math.Float64frombits(binary.LittleEndian.Uint64(src))
		}
	case mirtype.KindPtr, mirtype.KindNull:
		dst.Ptr = uintptr(binary.LittleEndian.Uint64(src))
	}
}

func readScalarInt(src []byte, size int, signed bool) int64 {
	switch size {
	case 1:
		if signed {
			return int64(int8(src[0]))
		}
		return int64(src[0])
	case 2:
		u := binary.LittleEndian.Uint16(src)
		if signed {
			return int64(int16(u))
		}
		return int64(u)
	case 4:
		u := binary.LittleEndian.Uint32(src)
		if signed {
			return int64(int32(u))
		}
		return int64(u)
	default:
		return int64(binary.LittleEndian.Uint64(src))
	}
}
