// Package ffi is the compiler's dynamic-call bridge: extern functions
// are resolved by name against dynamically loaded libraries, each resolved
// function caches a per-type argument signature string, and function pointers handed to
// foreign code are wrapped in generated callbacks that re-enter the
// interpreter. Resolution and dispatch go through cgo over libdl plus a small
// call shim that relies on the SysV/AAPCS64 argument-register split.
package ffi

import (
	"strings"

	"github.com/mirlang/mirc/internal/mirtype"
)

// Signature builds the argument-signature string for a function type per the
// fixed tag table (e.g. "ii)i" for two ints returning int):
// arguments first, a ')' separator, then the return type. Struct arguments
// expand recursively into their field tags. Cached per function by Resolve.
func Signature(t *mirtype.Type) string {
	var sb strings.Builder
	for _, arg := range t.FnArgs {
		writeTypeTag(&sb, arg.Type)
	}
	sb.WriteByte(')')
	writeTypeTag(&sb, t.FnRet)
	return sb.String()
}

func writeTypeTag(sb *strings.Builder, t *mirtype.Type) {
	if t == nil {
		sb.WriteByte('v')
		return
	}
	switch t.Kind {
	case mirtype.KindVoid:
		sb.WriteByte('v')
	case mirtype.KindBool:
		sb.WriteByte('B')
	case mirtype.KindInt:
		tag := byte('l')
		switch t.IntBits {
		case 8:
			tag = 'c'
		case 16:
			tag = 's'
		case 32:
			tag = 'i'
		}
		if !t.IntSigned {
			tag -= 'a' - 'A'
		}
		sb.WriteByte(tag)
	case mirtype.KindReal:
		if t.RealBits == 32 {
			sb.WriteByte('f')
		} else {
			sb.WriteByte('d')
		}
	case mirtype.KindPtr, mirtype.KindNull, mirtype.KindFn, mirtype.KindString:
		sb.WriteByte('p')
	case mirtype.KindEnum:
		writeTypeTag(sb, t.EnumBase)
	case mirtype.KindStruct:
		for _, m := range t.StructMembers {
			writeTypeTag(sb, m.Type)
		}
	default:
		sb.WriteByte('p')
	}
}
