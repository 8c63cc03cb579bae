package mirtype

import (
	"fmt"
	"strings"

	"github.com/mirlang/mirc/internal/arena"
)

// Arena owns every Type created for one compiled module. Scalar, pointer, array, function and slice/vargs types are
// interned by structural key so `type_cmp` for those kinds can be a pointer
// comparison after creation; struct and enum types are never interned because
// forward declarations require identity comparison.
type Arena struct {
	backing arena.Arena[Type]
	interned map[string]*Type
	nextID   uint64

	// Cached builtins, populated by NewArena.
	Void   *Type
	Bool   *Type
	Null   *Type
	String *Type
	TypeOf *Type // "type-of-types"
}

// NewArena creates an Arena with the fundamental builtin types pre-interned,
// so reserved identifiers map to pre-constructed types without allocation.
func NewArena() *Arena {
	a := &Arena{interned: make(map[string]*Type, 64)}
	a.Void = a.intern(Type{Kind: KindVoid, StoreSize: 0, Alignment: 1})
	a.Bool = a.intern(Type{Kind: KindBool, StoreSize: 1, Alignment: 1})
	a.Null = a.intern(Type{Kind: KindNull, StoreSize: 8, Alignment: 8})
	a.String = a.intern(Type{Kind: KindString, StoreSize: 16, Alignment: 8})
	a.TypeOf = a.intern(Type{Kind: KindType, StoreSize: 8, Alignment: 8})
	return a
}

// Usize is the default-architecture-width unsigned pointer-sized integer type,
// used for slice/vargs length fields. It is package-level because mirtype.Type's
// ElemAt needs it without an Arena in scope; a real build always routes it through
// an Arena-created Int(64, false) with identical layout, so a shared immutable
// instance is safe.
var Usize = &Type{Kind: KindInt, IntBits: 64, IntSigned: false, StoreSize: 8, Alignment: 8, UserID: "usize"}

func (a *Arena) alloc(t Type) *Type {
	p := a.backing.New()
	*p = t
	a.nextID++
	p.id = a.nextID
	return p
}

func (a *Arena) intern(t Type) *Type {
	key := structuralKey(&t)
	if existing, ok := a.interned[key]; ok {
		return existing
	}
	p := a.alloc(t)
	a.interned[key] = p
	return p
}

// Int returns the interned signed/unsigned integer type of the given bit width.
func (a *Arena) Int(bits int32, signed bool) *Type {
	store := uint64(bits+7) / 8
	align := int32(store)
	if align > 8 {
		align = 8
	}
	return a.intern(Type{Kind: KindInt, IntBits: bits, IntSigned: signed, StoreSize: store, Alignment: align})
}

// Real returns the interned floating point type of the given bit width (32 or 64).
func (a *Arena) Real(bits int32) *Type {
	return a.intern(Type{Kind: KindReal, RealBits: bits, StoreSize: uint64(bits) / 8, Alignment: int32(bits) / 8})
}

// Ptr returns the interned pointer-to-pointee type.
func (a *Arena) Ptr(pointee *Type) *Type {
	return a.intern(Type{Kind: KindPtr, Pointee: pointee, StoreSize: 8, Alignment: 8})
}

// Array returns the interned fixed-length array type.
func (a *Arena) Array(elem *Type, length int64) *Type {
	return a.intern(Type{
		Kind: KindArray, ElemType: elem, ArrayLen: length,
		StoreSize: elem.StoreSize * uint64(length), Alignment: elem.Alignment,
	})
}

// Slice returns the interned slice-of-elem type, laid out as
// {len: usize, ptr: *elem}.
func (a *Arena) Slice(elem *Type) *Type {
	return a.intern(Type{Kind: KindSlice, ElemType: elem, StoreSize: 16, Alignment: 8})
}

// VArgs returns the interned variadic-argument-slice type of the given element type.
func (a *Arena) VArgs(elem *Type) *Type {
	return a.intern(Type{Kind: KindVArgs, ElemType: elem, StoreSize: 16, Alignment: 8})
}

// Fn returns the interned function type. Structural equality for function types
// requires equal argument lists and equal return type.
func (a *Arena) Fn(args []*Arg, ret *Type, vargs bool) *Type {
	return a.intern(Type{Kind: KindFn, FnArgs: args, FnRet: ret, FnVArgs: vargs, StoreSize: 8, Alignment: 8})
}

// NewStructFwdDecl creates a new, incomplete, non-interned struct type to be
// completed later via CompleteStruct — this is how forward-declared structs
// (a struct referencing itself through a pointer member) are represented.
func (a *Arena) NewStructFwdDecl(userID string) *Type {
	return a.alloc(Type{Kind: KindStruct, UserID: userID, StructComplete: false})
}

// CompleteStruct fills in the members, layout and optional base of a forward
// declared struct type created by NewStructFwdDecl. Offsets are computed in
// declaration order honoring each member's alignment; IsPacked disables padding.
func (a *Arena) CompleteStruct(t *Type, members []*Member, packed bool, base *Type) {
	if t.Kind != KindStruct {
		panic("mirtype: CompleteStruct called on non-struct type")
	}
	offset := int32(0)
	maxAlign := int32(1)
	if base != nil {
		offset = int32(base.StoreSize)
		if base.Alignment > maxAlign {
			maxAlign = base.Alignment
		}
	}
	for _, m := range members {
		if !packed {
			offset = alignUp(offset, m.Type.Alignment)
		}
		m.Offset = offset
		offset += int32(m.Type.StoreSize)
		if m.Type.Alignment > maxAlign {
			maxAlign = m.Type.Alignment
		}
	}
	if !packed {
		offset = alignUp(offset, maxAlign)
	}
	t.StructMembers = members
	t.StructPacked = packed
	t.StructBase = base
	t.StoreSize = uint64(offset)
	t.Alignment = maxAlign
	t.StructComplete = true
}

func alignUp(n, align int32) int32 {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// NewEnum creates a new, non-interned enum type with a base integer type and
// ordered variants. Enums compare by identity, matching structs.
func (a *Arena) NewEnum(userID string, base *Type, variants []*Variant) *Type {
	return a.alloc(Type{
		Kind: KindEnum, UserID: userID, EnumBase: base, EnumVariants: variants,
		StoreSize: base.StoreSize, Alignment: base.Alignment,
	})
}

// structuralKey computes the interning key for scalar/pointer/array/function/
// slice/vargs types. Struct and enum types are never interned so they have no key
// here; callers must not call structuralKey on them.
func structuralKey(t *Type) string {
	switch t.Kind {
	case KindVoid, KindBool, KindNull, KindString, KindType:
		return t.Kind.String()
	case KindInt:
		return fmt.Sprintf("int:%d:%v", t.IntBits, t.IntSigned)
	case KindReal:
		return fmt.Sprintf("real:%d", t.RealBits)
	case KindPtr:
		return "ptr:" + keyOf(t.Pointee)
	case KindArray:
		return fmt.Sprintf("array:%d:%s", t.ArrayLen, keyOf(t.ElemType))
	case KindSlice:
		return "slice:" + keyOf(t.ElemType)
	case KindVArgs:
		return "vargs:" + keyOf(t.ElemType)
	case KindFn:
		var sb strings.Builder
		sb.WriteString("fn(")
		for _, arg := range t.FnArgs {
			sb.WriteString(keyOf(arg.Type))
			sb.WriteByte(',')
		}
		if t.FnVArgs {
			sb.WriteString("...")
		}
		sb.WriteString("):")
		sb.WriteString(keyOf(t.FnRet))
		return sb.String()
	default:
		panic(fmt.Sprintf("mirtype: structuralKey called on non-internable kind %s", t.Kind))
	}
}

func keyOf(t *Type) string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindStruct, KindEnum:
		// Structural contexts that embed a struct/enum (e.g. *MyStruct) key on
		// identity, the comparison rule for those kinds.
		return fmt.Sprintf("%s#%p", t.Kind, t)
	default:
		return structuralKey(t)
	}
}

// Equal is the type-equality rule: structural for scalars,
// pointers, arrays and function types; identity for structs and enums (because of
// possible forward declarations).
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindStruct, KindEnum:
		return false // already excluded by a == b above
	default:
		return structuralKey(a) == structuralKey(b)
	}
}
