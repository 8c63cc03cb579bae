// Package mir implements the Mid-level Intermediate Representation: the typed,
// SSA-lite instruction stream organized into basic blocks and functions, plus
// the Builder that lowers an ast.Node tree into it.
package mir

import (
	"fmt"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/mirtype"
)

// Kind enumerates the MIR instruction kinds.
type Kind int

const (
	KindInvalid Kind = iota

	// Structural
	KindBlock
	KindFnProto

	// Declarations
	KindDeclVar
	KindDeclMember
	KindDeclVariant
	KindDeclArg

	// References
	KindDeclRef
	KindDeclDirectRef
	KindArg

	// Values
	KindConst
	KindCompound
	KindVArgs

	// Memory
	KindLoad
	KindStore
	KindAddrOf
	KindElemPtr
	KindMemberPtr

	// Arithmetic
	KindBinop
	KindUnop
	KindCast

	// Control flow
	KindBr
	KindCondBr
	KindSwitch
	KindRet
	KindUnreachable
	KindPhi

	// Call
	KindCall

	// Type constructors
	KindTypeFn
	KindTypeStruct
	KindTypeEnum
	KindTypePtr
	KindTypeArray
	KindTypeSlice
	KindTypeVArgs

	// Reflection
	KindSizeof
	KindAlignof
	KindTypeInfo
	KindTypeKind
	KindToAny

	// Analyzer directives
	KindSetInitializer
)

var kindNames = map[Kind]string{
	KindBlock: "Block", KindFnProto: "FnProto",
	KindDeclVar: "DeclVar", KindDeclMember: "DeclMember", KindDeclVariant: "DeclVariant", KindDeclArg: "DeclArg",
	KindDeclRef: "DeclRef", KindDeclDirectRef: "DeclDirectRef", KindArg: "Arg",
	KindConst: "Const", KindCompound: "Compound", KindVArgs: "VArgs",
	KindLoad: "Load", KindStore: "Store", KindAddrOf: "AddrOf", KindElemPtr: "ElemPtr", KindMemberPtr: "MemberPtr",
	KindBinop: "Binop", KindUnop: "Unop", KindCast: "Cast",
	KindBr: "Br", KindCondBr: "CondBr", KindSwitch: "Switch", KindRet: "Ret", KindUnreachable: "Unreachable", KindPhi: "Phi",
	KindCall: "Call",
	KindTypeFn: "TypeFn", KindTypeStruct: "TypeStruct", KindTypeEnum: "TypeEnum", KindTypePtr: "TypePtr",
	KindTypeArray: "TypeArray", KindTypeSlice: "TypeSlice", KindTypeVArgs: "TypeVArgs",
	KindSizeof: "Sizeof", KindAlignof: "Alignof", KindTypeInfo: "TypeInfo", KindTypeKind: "TypeKind", KindToAny: "ToAny",
	KindSetInitializer: "SetInitializer",
}

// Name returns the print-friendly instruction-kind name.
func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Invalid"
}

func (k Kind) String() string { return k.Name() }

// CastOp enumerates the explicit-cast opcodes the analyzer selects from a fixed
// (src_kind, dst_kind, signedness, bit-width relation) table.
type CastOp int

const (
	CastInvalid CastOp = iota
	CastNone           // identity
	CastBitcast
	CastSext
	CastZext
	CastTrunc
	CastFptrunc
	CastFpext
	CastFptosi
	CastFptoui
	CastSitofp
	CastUitofp
	CastPtrtoint
	CastInttoptr
)

// BinopKind/UnopKind mirror ast.BinOp/ast.UnOp for MIR-level operators (the
// builder copies the AST operator across at lowering time).
type BinopKind = ast.BinOp
type UnopKind = ast.UnOp

// Instr is the polymorphic MIR instruction node: a stable id, owner
// block, doubly-linked sibling pointers, a value slot, a reference count, analyzed
// and unreachable flags. Kind-specific fields are held in the Data union below —
// Go has no tagged unions, so Data is one struct with every kind's fields and
// callers must only read the fields that apply to Instr.Kind. One flat struct
// keeps the builder's construction code linear instead of needing ~35 concrete
// types satisfying one interface.
type Instr struct {
	ID    uint64
	Kind  Kind
	Node  *ast.Node // originating AST node, for diagnostics; nil for compiler-synthesized instructions
	Block *Block    // owner basic block

	Value     mirtype.Value // result type + folded constant value + addr mode + comptime flag
	RefCount  int32
	Analyzed  bool
	Unreachable bool
	Implicit  bool // true for compiler-synthesized instructions (e.g. implicit Ret)

	Prev, Next *Instr // sibling links within Block

	Data InstrData
}

// InstrData holds the kind-specific operands of an Instr. Only the fields that
// correspond to Instr.Kind are populated; see the per-kind doc comment on each
// field.
type InstrData struct {
	// DeclVar / DeclMember / DeclVariant / DeclArg
	Var      *Var
	Member   *mirtype.Member
	Variant  *mirtype.Variant
	Arg      *mirtype.Arg
	DeclType *Instr // Call to the type-resolver thunk
	DeclInit *Instr // optional initializer expression

	// DeclRef
	RefName        string
	RefScope       *ast.Scope
	RefEntry       *ast.ScopeEntry
	AcceptIncomplete bool // decl_refs inside struct member type resolvers

	// DeclDirectRef / Load / AddrOf
	Ref *Instr

	// Arg (function-parameter reference inside a body)
	ArgIndex int

	// Load
	IsDeref bool

	// Store
	StoreSrc, StoreDst *Instr

	// Binop
	BinOp        BinopKind
	Lhs, Rhs     *Instr
	VolatileType bool // untyped literal, still foldable to a narrower type

	// Unop
	UnOp UnopKind
	Operand *Instr

	// Cast
	CastOp   CastOp
	CastType *Instr
	CastExpr *Instr
	AutoCast bool // destination type inferred from context, not named

	// ElemPtr
	ArrPtr *Instr
	Index  *Instr

	// MemberPtr
	MemberIdent string
	TargetPtr   *Instr
	MemberEntry *ast.ScopeEntry
	BuiltinMember BuiltinMemberKind

	// Call
	Callee *Instr
	Args   []*Instr

	// CondBr
	Cond            *Instr
	ThenBlk, ElseBlk *Block

	// Phi
	PhiIncoming []PhiIncoming

	// Br
	TargetBlk *Block

	// Switch
	SwitchValue  *Instr
	SwitchCases  []SwitchCase
	DefaultBlk   *Block
	HasUserDefault bool

	// Ret
	RetValue *Instr

	// Compound
	CompoundType   *Instr
	CompoundValues []*Instr
	CompoundTmp    *Var
	IsNaked        bool
	ZeroInitialized bool

	// VArgs
	VArgsArrTmp, VArgsTmp *Var
	VArgsType             *mirtype.Type
	VArgsValues           []*Instr

	// Sizeof / Alignof / TypeInfo / ToAny
	Expr      *Instr
	RTTIType  *mirtype.Type
	ToAnyTmp, ToAnyExprTmp *Var

	// FnProto
	FnTypeInstr   *Instr
	FnUserType    *Instr
	PushedForAnalyze bool
	Fn            *Fn

	// TypeFn / TypeStruct / TypeEnum / TypePtr / TypeArray / TypeSlice / TypeVArgs
	TypeRetInstr *Instr
	TypeArgsInstr []*Instr
	TypeArgNames  []string
	TypeElemInstr *Instr
	TypeLenInstr  *Instr
	TypeFwdDecl   *Instr
	TypeID        string
	TypeScope     *ast.Scope
	TypeMembersInstr []*Instr
	TypeVariantsInstr []*Instr
	TypeIsPacked  bool
	TypeBaseInstr *Instr

	// SetInitializer
	InitDest, InitSrc *Instr

	// Unreachable
	AbortFn *Fn
}

// BuiltinMemberKind distinguishes a synthesized `.len`/`.ptr` member access on an
// array/slice/vargs from an ordinary struct member lookup.
type BuiltinMemberKind int

const (
	BuiltinMemberNone BuiltinMemberKind = iota
	BuiltinMemberLen
	BuiltinMemberPtr
)

// SwitchCase pairs a comptime case value with the block to branch to.
type SwitchCase struct {
	OnValue *Instr
	Block   *Block
}

// PhiIncoming pairs a value-producing instruction with the predecessor block it
// flows in from. The VM selects the incoming whose Block matches the stack's
// prev_block.
type PhiIncoming struct {
	Value *Instr
	Block *Block
}

// IsComptime reports whether Instr i's result was (or will be) evaluated at
// compile time.
func (i *Instr) IsComptime() bool { return i.Value.IsComptime }

// InGlobalBlock reports whether Instr i lives in the implicit global block.
func (i *Instr) InGlobalBlock() bool { return i.Block.Fn == nil }

// String renders a one-line textual form of the instruction for MIR dumps.
func (i *Instr) String() string {
	return fmt.Sprintf("%%%d = %s", i.ID, i.Kind.Name())
}
