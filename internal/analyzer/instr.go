package analyzer

import (
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// analyzeOne analyzes instr's result Value and returns the Instr it is blocked
// on, or nil once instr is fully analyzed.
func (a *Analyzer) analyzeOne(instr *mir.Instr) *mir.Instr {
	switch instr.Kind {
	case mir.KindConst:
		a.analyzeConst(instr)
	case mir.KindDeclRef:
		return a.analyzeDeclRef(instr)
	case mir.KindLoad:
		a.analyzeLoad(instr)
	case mir.KindStore:
		a.analyzeStore(instr)
	case mir.KindAddrOf:
		a.analyzeAddrOf(instr)
	case mir.KindBinop:
		a.analyzeBinop(instr)
	case mir.KindUnop:
		a.analyzeUnop(instr)
	case mir.KindCast:
		a.analyzeCast(instr)
	case mir.KindDeclVar:
		a.analyzeDeclVar(instr)
	case mir.KindFnProto:
		a.analyzeFnProto(instr)
	case mir.KindArg:
		a.analyzeArg(instr)
	case mir.KindCall:
		a.analyzeCall(instr)
	case mir.KindRet:
		a.analyzeRet(instr)
	case mir.KindBr, mir.KindCondBr, mir.KindSwitch, mir.KindUnreachable:
		// No result of their own; operands were already analyzed earlier in
		// sequence. Typed void so every analyzed instruction carries a value
		// type uniformly.
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
	case mir.KindElemPtr:
		a.analyzeElemPtr(instr)
	case mir.KindMemberPtr:
		a.analyzeMemberPtr(instr)
	case mir.KindCompound:
		a.analyzeCompound(instr)
	case mir.KindSizeof:
		a.analyzeSizeof(instr)
	case mir.KindAlignof:
		a.analyzeAlignof(instr)
	case mir.KindTypeInfo:
		a.analyzeTypeInfo(instr)
	case mir.KindTypeKind:
		a.analyzeTypeKindOf(instr)
	case mir.KindToAny:
		a.analyzeToAny(instr)
	case mir.KindTypeFn, mir.KindTypeStruct, mir.KindTypeEnum, mir.KindTypePtr,
		mir.KindTypeArray, mir.KindTypeSlice, mir.KindTypeVArgs:
		a.analyzeTypeCtor(instr)
	case mir.KindDeclArg:
		a.analyzeDeclArg(instr)
	case mir.KindPhi:
		a.analyzePhi(instr)
	case mir.KindSetInitializer:
		a.analyzeSetInitializer(instr)
	case mir.KindDeclMember, mir.KindDeclVariant, mir.KindVArgs:
		// Declarative bookkeeping kinds with no independent result value beyond
		// what their owning instruction (TypeStruct/TypeEnum/VArgs call site)
		// already records.
		if instr.Value.Type == nil {
			instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		}
	default:
		a.Sink.Warning(a.loc(instr), "analyzer: unhandled instruction kind %s", instr.Kind)
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
	}
	return nil
}

func (a *Analyzer) loc(instr *mir.Instr) ast.Loc {
	if instr.Node != nil {
		return instr.Node.Loc
	}
	return ast.Loc{}
}

func (a *Analyzer) types() *mirtype.Arena { return a.Module.Types }

// --- literals & references ----------------------------------------------------

func (a *Analyzer) analyzeConst(instr *mir.Instr) {
	t := a.types()
	if instr.Value.Type != nil {
		return // already typed by a folding rule upstream (e.g. volatile binop)
	}
	if instr.Node == nil {
		// Compiler-synthesized constant with no originating syntax.
		instr.Value = mirtype.Value{Type: t.Void, Addr: mirtype.AddrRValue, IsComptime: true}
		return
	}
	switch instr.Node.Kind {
	case ast.KindIntLit:
		instr.Value.Type = t.Int(32, true)
	case ast.KindFloatLit:
		instr.Value.Type = t.Real(64)
	case ast.KindBoolLit:
		instr.Value.Type = t.Bool
	case ast.KindStringLit:
		instr.Value.Type = t.String
		if s, ok := instr.Node.Data.(string); ok {
			instr.Value.Composite = &mirtype.Composite{}
			_ = s // string bytes are owned by the VM's read-only data segment, not modeled further here
		}
	case ast.KindNullLit:
		instr.Value.Type = t.Null
	default:
		instr.Value.Type = t.Void
	}
	instr.Value.Addr = mirtype.AddrRValue
	instr.Value.IsComptime = true
}

// analyzeDeclRef resolves an identifier: first against the builtin table,
// then against its lexical scope. Returns the target Instr to
// block on if the scope entry exists but hasn't finished analysis yet.
func (a *Analyzer) analyzeDeclRef(instr *mir.Instr) *mir.Instr {
	name := instr.Data.RefName

	if bk := ast.LookupBuiltin(name); bk != ast.BuiltinNone {
		instr.Value = builtinTypeValue(a.types(), bk)
		return nil
	}

	scope := instr.Data.RefScope
	entry, _ := scope.Lookup(name)
	if entry == nil || entry.Instr == nil {
		a.Sink.Error(diag.CodeUnknownSymbol, a.loc(instr), diag.CursorWord, "unknown symbol '%s'", name)
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return nil
	}
	target, ok := entry.Instr.(*mir.Instr)
	if !ok || target == nil {
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return nil
	}
	if !target.Analyzed {
		return target
	}
	instr.Data.Ref = target
	instr.Value = target.Value
	if target.Kind == mir.KindDeclVar || target.Kind == mir.KindDeclArg {
		// A reference to storage is an l-value and never comptime-folds on its
		// own: the backing memory can be mutated between here and any Load.
		instr.Value.Addr = mirtype.AddrLValue
		instr.Value.IsComptime = false
	}
	return nil
}

func builtinTypeValue(t *mirtype.Arena, bk ast.BuiltinKind) mirtype.Value {
	var typ *mirtype.Type
	switch bk {
	case ast.BuiltinS8:
		typ = t.Int(8, true)
	case ast.BuiltinS16:
		typ = t.Int(16, true)
	case ast.BuiltinS32:
		typ = t.Int(32, true)
	case ast.BuiltinS64:
		typ = t.Int(64, true)
	case ast.BuiltinU8:
		typ = t.Int(8, false)
	case ast.BuiltinU16:
		typ = t.Int(16, false)
	case ast.BuiltinU32:
		typ = t.Int(32, false)
	case ast.BuiltinU64:
		typ = t.Int(64, false)
	case ast.BuiltinUsize:
		typ = mirtype.Usize
	case ast.BuiltinF32:
		typ = t.Real(32)
	case ast.BuiltinF64:
		typ = t.Real(64)
	case ast.BuiltinBool:
		typ = t.Bool
	case ast.BuiltinVoid:
		typ = t.Void
	case ast.BuiltinType:
		typ = t.TypeOf
	case ast.BuiltinNull:
		typ = t.Null
	case ast.BuiltinString:
		typ = t.String
	default:
		typ = t.Void
	}
	return mirtype.Value{Type: t.TypeOf, TypeV: typ, Addr: mirtype.AddrRValue, IsComptime: true}
}

func (a *Analyzer) analyzeLoad(instr *mir.Instr) {
	ref := instr.Data.Ref
	instr.Value = ref.Value
	// Loading through an address-producing instruction (or an explicit deref
	// of a pointer value) yields the pointee; a direct reference to storage
	// already carries the stored type.
	switch {
	case ref.Kind == mir.KindElemPtr || ref.Kind == mir.KindMemberPtr || ref.Kind == mir.KindAddrOf,
		instr.Data.IsDeref:
		if t := ref.Value.Type; t != nil && t.Kind == mirtype.KindPtr {
			instr.Value = mirtype.Value{Type: t.Pointee}
		} else if instr.Data.IsDeref {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "cannot dereference a non-pointer value")
			instr.Value = mirtype.Value{Type: a.types().Void}
		}
	}
	instr.Value.Addr = mirtype.AddrRValue
}

func (a *Analyzer) analyzeStore(instr *mir.Instr) {
	dst, src := instr.Data.StoreDst, instr.Data.StoreSrc
	if dst.Value.Addr == mirtype.AddrLValueConst {
		a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "cannot assign to an immutable binding")
	}
	// The destination's value type is the stored type for direct l-values
	// (DeclRef), but address-producing instructions and deref stores through a
	// pointer r-value contribute their pointee.
	want := dst.Value.Type
	switch {
	case dst.Kind == mir.KindElemPtr || dst.Kind == mir.KindMemberPtr || dst.Kind == mir.KindAddrOf:
		want = want.Deref()
	case dst.Value.Addr != mirtype.AddrLValue && want != nil && want.Kind == mirtype.KindPtr:
		want = want.Pointee
	}
	if want != nil && src.Value.Type != nil && !mirtype.Equal(want, src.Value.Type) {
		if !a.tryImplicitCast(src, want) {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
				"no implicit cast for types '%s' and '%s'", src.Value.Type, want)
		}
	}
	instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
}

func (a *Analyzer) analyzeAddrOf(instr *mir.Instr) {
	ref := instr.Data.Ref
	instr.Value = mirtype.Value{Type: a.types().Ptr(ref.Value.Type), Addr: mirtype.AddrRValue}
}

// --- declarations ---------------------------------------------------------------

func (a *Analyzer) analyzeDeclVar(instr *mir.Instr) {
	v := instr.Data.Var
	var declared *mirtype.Type
	if dt := instr.Data.DeclType; dt != nil {
		declared = dt.Value.TypeV
	}
	var initType *mirtype.Type
	if di := instr.Data.DeclInit; di != nil {
		initType = di.Value.Type
		if declared == nil {
			declared = initType
		} else if initType != nil && !mirtype.Equal(declared, initType) {
			if !a.tryImplicitCast(di, declared) {
				a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
					"no implicit cast for types '%s' and '%s'", initType, declared)
			}
		}
	}
	if declared == nil {
		declared = a.types().Void
	}
	v.Type = declared
	v.Alignment = declared.Alignment
	if a.Types != nil {
		a.Types.Materialize(declared)
	}
	instr.Value = mirtype.Value{Type: declared, Addr: mirtype.AddrLValue}
	// Only a global's declaration folds to a comptime value: its initializer is
	// evaluated once and baked into the static segment. A local is mutable
	// storage regardless of how constant its initializer happens to be.
	if di := instr.Data.DeclInit; di != nil && v.IsGlobal && di.Value.IsComptime {
		instr.Value.Int = di.Value.Int
		instr.Value.Real = di.Value.Real
		instr.Value.Ptr = di.Value.Ptr
		instr.Value.TypeV = di.Value.TypeV
		instr.Value.FnV = di.Value.FnV
		instr.Value.Composite = di.Value.Composite
		instr.Value.IsComptime = true
	}
}

func (a *Analyzer) analyzeFnProto(instr *mir.Instr) {
	fn := instr.Data.Fn
	typeInstr := instr.Data.FnTypeInstr
	fnType := typeInstr.Value.TypeV
	if fnType == nil {
		fnType = a.types().Fn(nil, a.types().Void, false)
	}
	fn.Type = fnType
	if a.Types != nil {
		a.Types.Materialize(fnType)
	}
	instr.Value = mirtype.Value{Type: a.types().TypeOf, TypeV: fnType, FnV: fn, Addr: mirtype.AddrRValue, IsComptime: true}

	if fn.Linkage == mir.LinkageExtern {
		fn.MarkAnalyzed()
		return
	}
	if fn.FirstUnreachableLoc != nil {
		a.Sink.Warning(*fn.FirstUnreachableLoc, "unreachable code")
	}
	a.checkReturnClosure(instr, fn)
	fn.MarkAnalyzed()
}

// checkReturnClosure enforces the control-flow closure invariant: every
// reachable block must end in a terminator, and in a non-void function no
// reachable path may fall off the end through the builder's implicit void Ret
// ("not every path returns"). Unreachable blocks (e.g. the empty merge block
// after an if whose branches both return) are exempt; the analyzer records the
// block successor edges as a side effect.
func (a *Analyzer) checkReturnClosure(instr *mir.Instr, fn *mir.Fn) {
	nonVoid := fn.Type != nil && fn.Type.FnRet != nil && fn.Type.FnRet.Kind != mirtype.KindVoid
	for _, blk := range reachableBlocks(fn) {
		last := blk.Last()
		if last == nil || !blk.Terminated() {
			a.Sink.Error(diag.CodeMissingReturn, a.loc(instr), diag.CursorWord,
				"not every path returns a value in function '%s'", fn.Name)
			return
		}
		if nonVoid && last.Kind == mir.KindRet && last.Implicit && last.Data.RetValue == nil {
			a.Sink.Error(diag.CodeMissingReturn, a.loc(instr), diag.CursorWord,
				"not every path returns a value in function '%s'", fn.Name)
			return
		}
	}
}

// reachableBlocks walks fn's CFG from the entry block following terminator
// targets, populating each reached block's Succs on the way.
func reachableBlocks(fn *mir.Fn) []*mir.Block {
	if fn.Entry == nil {
		return nil
	}
	seen := map[*mir.Block]bool{fn.Entry: true}
	order := []*mir.Block{fn.Entry}
	for i := 0; i < len(order); i++ {
		blk := order[i]
		last := blk.Last()
		if last == nil {
			continue
		}
		var succs []*mir.Block
		switch last.Kind {
		case mir.KindBr:
			succs = []*mir.Block{last.Data.TargetBlk}
		case mir.KindCondBr:
			succs = []*mir.Block{last.Data.ThenBlk, last.Data.ElseBlk}
		case mir.KindSwitch:
			for _, c := range last.Data.SwitchCases {
				succs = append(succs, c.Block)
			}
			if last.Data.DefaultBlk != nil {
				succs = append(succs, last.Data.DefaultBlk)
			}
		}
		blk.Succs = succs
		for _, s := range succs {
			if s != nil && !seen[s] {
				seen[s] = true
				s.Preds = append(s.Preds, blk)
				order = append(order, s)
			}
		}
	}
	return order
}

// analyzeDeclArg types a function parameter's call-frame slot from the owning
// function's (already analyzed) prototype.
func (a *Analyzer) analyzeDeclArg(instr *mir.Instr) {
	fn := instr.Block.Fn
	var at *mirtype.Type
	if fn != nil && fn.Type != nil && fn.Type.Kind == mirtype.KindFn {
		if idx := instr.Data.ArgIndex; idx >= 0 && idx < len(fn.Type.FnArgs) {
			at = fn.Type.FnArgs[idx].Type
		}
	}
	if at == nil {
		at = a.types().Void
	}
	instr.Value = mirtype.Value{Type: at, Addr: mirtype.AddrLValue}
}

func (a *Analyzer) analyzePhi(instr *mir.Instr) {
	var t *mirtype.Type
	for _, in := range instr.Data.PhiIncoming {
		if in.Value == nil || in.Value.Value.Type == nil {
			continue
		}
		if t == nil {
			t = in.Value.Value.Type
		} else if !mirtype.Equal(t, in.Value.Value.Type) {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
				"no implicit cast for types '%s' and '%s'", t, in.Value.Value.Type)
		}
	}
	if t == nil {
		t = a.types().Void
	}
	instr.Value = mirtype.Value{Type: t, Addr: mirtype.AddrRValue}
}

// analyzeSetInitializer binds an already-analyzed initializer expression to a
// global's Var record.
func (a *Analyzer) analyzeSetInitializer(instr *mir.Instr) {
	dest, src := instr.Data.InitDest, instr.Data.InitSrc
	if dest == nil || dest.Kind != mir.KindDeclVar || dest.Data.Var == nil {
		a.Sink.Error(diag.CodeInvalidExpr, a.loc(instr), diag.CursorWord, "initializer destination is not a variable declaration")
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return
	}
	dest.Data.Var.Initializer = src
	instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
}

func (a *Analyzer) analyzeArg(instr *mir.Instr) {
	instr.Value = instr.Data.Expr.Value
	instr.Value.Addr = mirtype.AddrRValue
}

func (a *Analyzer) analyzeCall(instr *mir.Instr) {
	calleeType := instr.Data.Callee.Value.TypeV
	if calleeType == nil {
		calleeType = instr.Data.Callee.Value.Type
	}
	if calleeType != nil && calleeType.Kind == mirtype.KindPtr && calleeType.Pointee != nil && calleeType.Pointee.Kind == mirtype.KindFn {
		// Calling through a function pointer dereferences it first.
		calleeType = calleeType.Pointee
	}
	if calleeType == nil || calleeType.Kind != mirtype.KindFn {
		a.Sink.Error(diag.CodeExpectedFunc, a.loc(instr), diag.CursorWord, "called expression is not a function")
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return
	}
	if !calleeType.FnVArgs && len(instr.Data.Args) != len(calleeType.FnArgs) {
		a.Sink.Error(diag.CodeInvalidArgCount, a.loc(instr), diag.CursorWord,
			"expected %d arguments, got %d", len(calleeType.FnArgs), len(instr.Data.Args))
	}
	for i, arg := range instr.Data.Args {
		if i >= len(calleeType.FnArgs) {
			break
		}
		want := calleeType.FnArgs[i].Type
		if arg.Value.Type != nil && !mirtype.Equal(arg.Value.Type, want) {
			if !a.tryImplicitCast(arg, want) {
				a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
					"no implicit cast for types '%s' and '%s'", arg.Value.Type, want)
			}
		}
	}
	instr.Value = mirtype.Value{Type: calleeType.FnRet, Addr: mirtype.AddrRValue}
}

func (a *Analyzer) analyzeRet(instr *mir.Instr) {
	var want *mirtype.Type
	if fn := instr.Block.Fn; fn != nil && fn.Type != nil && fn.Type.Kind == mirtype.KindFn {
		want = fn.Type.FnRet
	}
	if instr.Data.RetValue == nil {
		if !instr.Implicit && want != nil && want.Kind != mirtype.KindVoid {
			a.Sink.Error(diag.CodeInvalidExpr, a.loc(instr), diag.CursorWord,
				"return without a value in a function returning '%s'", want)
		}
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return
	}
	rv := instr.Data.RetValue
	if want != nil && rv.Value.Type != nil && !mirtype.Equal(rv.Value.Type, want) {
		if !a.tryImplicitCast(rv, want) {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
				"no implicit cast for types '%s' and '%s'", rv.Value.Type, want)
		}
	}
	instr.Value = rv.Value
}
