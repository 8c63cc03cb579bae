package analyzer

import (
	"github.com/pkg/errors"
	"tinygo.org/x/go-llvm"

	"github.com/mirlang/mirc/internal/mirtype"
)

// LLVMTypes materializes the lazily-computed LLVM handle, store size and
// alignment of every analyzed mirtype.Type against a real target data layout,
// so the sizes the comptime VM computes with match what the backend will emit.
// It also owns the LLVM context, module and target-data handles the analyzed
// module hands to the backend.
type LLVMTypes struct {
	ctx llvm.Context
	mod llvm.Module
	td  llvm.TargetData
}

// NewLLVMTypes creates the LLVM context/module/target-data trio for moduleName
// using the host target's default data layout.
func NewLLVMTypes(moduleName string) (*LLVMTypes, error) {
	if err := llvm.InitializeNativeTarget(); err != nil {
		return nil, errors.Wrap(err, "initialize native target")
	}
	ctx := llvm.NewContext()
	mod := ctx.NewModule(moduleName)

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, errors.Wrapf(err, "no target for triple %q", triple)
	}
	tm := target.CreateTargetMachine(triple, "", "", llvm.CodeGenLevelNone, llvm.RelocDefault, llvm.CodeModelDefault)
	td := tm.CreateTargetData()
	mod.SetDataLayout(td.String())
	mod.SetTarget(triple)
	return &LLVMTypes{ctx: ctx, mod: mod, td: td}, nil
}

// Context, LLVMModule and TargetData expose the backend handles the analyzed
// module carries.
func (l *LLVMTypes) Context() llvm.Context      { return l.ctx }
func (l *LLVMTypes) LLVMModule() llvm.Module    { return l.mod }
func (l *LLVMTypes) TargetData() llvm.TargetData { return l.td }

// Materialize computes (once) the LLVM handle for t and, where the model left
// them unset, its store size and alignment per the target data layout. Function
// types compose from argument and return handles; arrays and pointers compose
// directly.
func (l *LLVMTypes) Materialize(t *mirtype.Type) llvm.Type {
	if t == nil {
		return l.ctx.VoidType()
	}
	if h, ok := t.LLVMHandle(); ok {
		return h.(llvm.Type)
	}
	h := l.lower(t)
	t.SetLLVMHandle(h)
	switch t.Kind {
	case mirtype.KindVoid, mirtype.KindFn, mirtype.KindType:
		// No storage of their own; sizes stay as the model set them.
	default:
		t.StoreSize = l.td.TypeAllocSize(h)
		t.Alignment = int32(l.td.ABITypeAlignment(h))
	}
	return h
}

func (l *LLVMTypes) lower(t *mirtype.Type) llvm.Type {
	switch t.Kind {
	case mirtype.KindVoid, mirtype.KindType:
		return l.ctx.VoidType()
	case mirtype.KindBool:
		return l.ctx.Int1Type()
	case mirtype.KindInt:
		bits := t.IntBits
		if bits == 0 {
			bits = 64
		}
		return l.ctx.IntType(int(bits))
	case mirtype.KindReal:
		if t.RealBits == 32 {
			return l.ctx.FloatType()
		}
		return l.ctx.DoubleType()
	case mirtype.KindPtr:
		pointee := l.Materialize(t.Pointee)
		if pointee.TypeKind() == llvm.VoidTypeKind {
			pointee = l.ctx.Int8Type()
		}
		return llvm.PointerType(pointee, 0)
	case mirtype.KindNull:
		return llvm.PointerType(l.ctx.Int8Type(), 0)
	case mirtype.KindArray:
		return llvm.ArrayType(l.Materialize(t.ElemType), int(t.ArrayLen))
	case mirtype.KindSlice, mirtype.KindVArgs, mirtype.KindString:
		// {len: usize, ptr: *elem}, the layout every composite fat value shares.
		elem := l.ctx.Int8Type()
		if t.ElemType != nil {
			elem = l.Materialize(t.ElemType)
		}
		return l.ctx.StructType([]llvm.Type{l.ctx.Int64Type(), llvm.PointerType(elem, 0)}, false)
	case mirtype.KindFn:
		params := make([]llvm.Type, 0, len(t.FnArgs))
		for _, arg := range t.FnArgs {
			params = append(params, l.Materialize(arg.Type))
		}
		return llvm.FunctionType(l.Materialize(t.FnRet), params, t.FnVArgs)
	case mirtype.KindStruct:
		fields := make([]llvm.Type, 0, len(t.StructMembers)+1)
		if t.StructBase != nil {
			fields = append(fields, l.Materialize(t.StructBase))
		}
		for _, m := range t.StructMembers {
			fields = append(fields, l.Materialize(m.Type))
		}
		return l.ctx.StructType(fields, t.StructPacked)
	case mirtype.KindEnum:
		base := t.EnumBase
		if base == nil {
			return l.ctx.Int32Type()
		}
		return l.Materialize(base)
	default:
		return l.ctx.VoidType()
	}
}

// Dispose releases the LLVM handles. Safe to call exactly once at module
// teardown; materialized mirtype handles must not be used afterwards.
func (l *LLVMTypes) Dispose() {
	l.td.Dispose()
	l.mod.Dispose()
	l.ctx.Dispose()
}
