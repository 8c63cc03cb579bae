// Package mirtype implements the compiler's type model: a tagged value
// describing void, bool, integer, real, pointer, array, function, struct, enum,
// slice, string, vargs, null or "type-of-types", each carrying store size,
// alignment, a stable identity hash, an optional user-assigned identifier and a
// lazily-materialized LLVM handle. Types are owned by a type Arena; equality is
// structural for scalars/pointers/arrays/functions and by-identity for
// structs/enums.
package mirtype

import "fmt"

// Kind discriminates the Type variants.
type Kind int

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt
	KindReal
	KindPtr
	KindArray
	KindFn
	KindStruct
	KindEnum
	KindSlice
	KindString
	KindVArgs
	KindNull
	KindType // "type-of-types": the type of a type value itself
)

var kindNames = [...]string{
	"invalid", "void", "bool", "int", "real", "ptr", "array", "fn",
	"struct", "enum", "slice", "string", "vargs", "null", "type",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// ArgPassMode is the external-call passing mode of a function argument: direct, promoted-to-iN, or byval.
type ArgPassMode int

const (
	PassDirect ArgPassMode = iota
	PassPromoted8
	PassPromoted16
	PassPromoted32
	PassPromoted64
	PassByval
)

// Arg is a named function argument.
type Arg struct {
	Name      string
	Type      *Type
	LLVMIndex int // index of this argument in the generated LLVM IR
	PassMode  ArgPassMode
}

// Member is a named struct component.
type Member struct {
	Name   string
	Type   *Type
	Offset int32 // byte offset within the struct
	Index  int
	IsBase bool // true for an inherited struct base member
}

// Variant is a named enum component.
type Variant struct {
	Name  string
	Value int64
	Index int
}

// llvmInfo caches the lazily-materialized LLVM handle for a Type. The concrete
// handle type (llvm.Type from tinygo.org/x/go-llvm) lives in internal/analyzer so
// this package has no LLVM dependency of its own.
type llvmInfo struct {
	handle      interface{}
	materialized bool
}

// Type is the tagged type value.
type Type struct {
	Kind   Kind
	id     uint64 // stable identity hash, assigned at creation by the owning Arena
	UserID string // optional user-assigned identifier, e.g. a named struct/enum/alias

	StoreSize uint64 // size in bytes
	Alignment int32

	// Integer
	IntBits   int32
	IntSigned bool

	// Real
	RealBits int32

	// Pointer
	Pointee *Type

	// Array / Slice / VArgs element type (+ Array length)
	ElemType *Type
	ArrayLen int64

	// Function
	FnRet    *Type
	FnArgs   []*Arg
	FnVArgs  bool

	// Struct
	StructMembers  []*Member
	StructPacked   bool
	StructBase     *Type // optional base type from `#base`
	StructComplete bool  // false for forward declarations

	// Enum
	EnumBase     *Type
	EnumVariants []*Variant

	llvm llvmInfo
}

// ID returns the stable identity hash assigned to this Type when it was created.
func (t *Type) ID() uint64 { return t.id }

// LLVMHandle returns the cached LLVM handle and whether it has been materialized.
func (t *Type) LLVMHandle() (interface{}, bool) {
	return t.llvm.handle, t.llvm.materialized
}

// SetLLVMHandle caches the materialized LLVM handle for this Type. Called exactly
// once per Type by internal/analyzer/llvmtypes.go.
func (t *Type) SetLLVMHandle(h interface{}) {
	t.llvm.handle = h
	t.llvm.materialized = true
}

// IsPointer reports whether t is a pointer type.
func (t *Type) IsPointer() bool { return t.Kind == KindPtr }

// Deref returns the pointee of a pointer type, or nil if t is not a pointer.
func (t *Type) Deref() *Type {
	if t.Kind != KindPtr {
		return nil
	}
	return t.Pointee
}

// IsComposite reports whether t is a struct, string, slice or vargs type.
func (t *Type) IsComposite() bool {
	switch t.Kind {
	case KindStruct, KindString, KindSlice, KindVArgs:
		return true
	default:
		return false
	}
}

// ElemAt returns the type of composite member/element i, panicking if t is not
// composite or i is out of range for a struct. For slice, vargs and string
// types, SliceLenIndex yields usize and every other index yields the pointer member.
func (t *Type) ElemAt(i int) *Type {
	if !t.IsComposite() {
		panic(fmt.Sprintf("mirtype: ElemAt called on non-composite type %s", t.Kind))
	}
	switch t.Kind {
	case KindStruct:
		if i < 0 || i >= len(t.StructMembers) {
			panic(fmt.Sprintf("mirtype: member index %d out of range for struct with %d members", i, len(t.StructMembers)))
		}
		return t.StructMembers[i].Type
	case KindSlice, KindVArgs, KindString:
		// Slices/vargs/strings are always {len usize, ptr *elem}.
		if i == SliceLenIndex {
			return Usize
		}
		return &Type{Kind: KindPtr, Pointee: t.ElemType}
	}
	panic("unreachable")
}

// FnArgType returns the type of function argument i, or nil if t has no arguments.
func (t *Type) FnArgType(i int) *Type {
	if t.Kind != KindFn {
		panic("mirtype: FnArgType called on non-function type")
	}
	if t.FnArgs == nil {
		return nil
	}
	if i < 0 || i >= len(t.FnArgs) {
		panic(fmt.Sprintf("mirtype: argument index %d out of range for function with %d arguments", i, len(t.FnArgs)))
	}
	return t.FnArgs[i].Type
}

// SliceLenIndex and SlicePtrIndex are the struct-member indices of a slice's
// length and pointer fields; every fat value shares this layout.
const (
	SliceLenIndex = 0
	SlicePtrIndex = 1
)

// String renders a human-readable type name, used in diagnostics and debugging.
func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	if t.UserID != "" {
		return t.UserID
	}
	switch t.Kind {
	case KindInt:
		sign := "s"
		if !t.IntSigned {
			sign = "u"
		}
		if t.IntBits == 0 && !t.IntSigned {
			return "usize"
		}
		return fmt.Sprintf("%s%d", sign, t.IntBits)
	case KindReal:
		return fmt.Sprintf("f%d", t.RealBits)
	case KindPtr:
		return "*" + t.Pointee.String()
	case KindArray:
		return fmt.Sprintf("[%d]%s", t.ArrayLen, t.ElemType.String())
	case KindSlice:
		return "[]" + t.ElemType.String()
	case KindVArgs:
		return "..." + t.ElemType.String()
	case KindFn:
		s := "fn("
		for i1, a := range t.FnArgs {
			if i1 > 0 {
				s += ", "
			}
			s += a.Type.String()
		}
		if t.FnVArgs {
			s += ",..."
		}
		s += ") " + t.FnRet.String()
		return s
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	default:
		return t.Kind.String()
	}
}
