package analyzer

import (
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// tryImplicitCast attempts to rewrite instr's Value in place to type want.
// Only comptime values are converted: an integer to any other integer size or
// signedness, a real to any other real size, an integer to a real, and null to
// any pointer type. A void-typed (poisoned) value is accepted as is. Returns
// false (and leaves instr untouched) if no implicit rule applies, in which case
// the caller reports an explicit no-implicit-cast diagnostic.
func (a *Analyzer) tryImplicitCast(instr *mir.Instr, want *mirtype.Type) bool {
	got := instr.Value.Type
	if got == nil || want == nil || mirtype.Equal(got, want) {
		return true
	}
	if got.Kind == mirtype.KindVoid {
		// Poison type from an earlier diagnostic; absorbing it silently keeps
		// one user error from cascading into a mismatch at every use site.
		return true
	}
	if !instr.Value.IsComptime {
		return false
	}
	switch {
	case got.Kind == mirtype.KindInt && want.Kind == mirtype.KindInt:
		instr.Value.Type = want
		return true
	case got.Kind == mirtype.KindReal && want.Kind == mirtype.KindReal:
		instr.Value.Type = want
		return true
	case got.Kind == mirtype.KindInt && want.Kind == mirtype.KindReal:
		instr.Value.Real = float64(instr.Value.Int)
		instr.Value.Type = want
		return true
	case got.Kind == mirtype.KindNull && want.Kind == mirtype.KindPtr:
		instr.Value.Type = want
		return true
	}
	return false
}

// analyzeBinop implements the binary-operator type rule: operand types must
// match, after an implicit cast of a comptime rhs (or else lhs) to the other
// side's type; relational/equality operators always yield bool, logical
// operators require bool operands, everything else yields the common operand
// type. Constant folding happens eagerly when both operands are comptime.
func (a *Analyzer) analyzeBinop(instr *mir.Instr) {
	lhs, rhs := instr.Data.Lhs, instr.Data.Rhs
	op := instr.Data.BinOp
	instr.Data.VolatileType = lhs.Value.IsComptime && rhs.Value.IsComptime

	if lhs.Value.Type != nil && rhs.Value.Type != nil && !mirtype.Equal(lhs.Value.Type, rhs.Value.Type) {
		if rhs.Value.IsComptime && a.tryImplicitCast(rhs, lhs.Value.Type) {
			// folded rhs into lhs's type
		} else if lhs.Value.IsComptime && a.tryImplicitCast(lhs, rhs.Value.Type) {
			// folded lhs into rhs's type
		} else {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord,
				"no implicit cast for types '%s' and '%s'", lhs.Value.Type, rhs.Value.Type)
		}
	}

	resultType := lhs.Value.Type
	switch op {
	case ast.OpEq, ast.OpNeq, ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		resultType = a.types().Bool
	case ast.OpLogAnd, ast.OpLogOr:
		if lhs.Value.Type != nil && lhs.Value.Type.Kind != mirtype.KindBool {
			a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "logical operator requires bool operands")
		}
		resultType = a.types().Bool
	}

	instr.Value.Type = resultType
	instr.Value.Addr = mirtype.AddrRValue
	instr.Value.IsComptime = lhs.Value.IsComptime && rhs.Value.IsComptime
	if instr.Value.IsComptime {
		foldBinop(instr, op, lhs.Value, rhs.Value)
	}
}

// foldBinop evaluates a comptime binary operation using Go's native wraparound
// integer semantics for intN/uintN arithmetic: the int64 result is wrapped to
// the width and signedness of the integer result type.
func foldBinop(instr *mir.Instr, op ast.BinOp, lhs, rhs mirtype.Value) {
	// Dispatch on the operand types, never on the scalar payload fields: the
	// result type is bool for comparisons, and a stale Real left over from an
	// earlier fold must not reroute an integer operation.
	isReal := (lhs.Type != nil && lhs.Type.Kind == mirtype.KindReal) ||
		(rhs.Type != nil && rhs.Type.Kind == mirtype.KindReal)
	if isReal {
		l, r := lhs.Real, rhs.Real
		switch op {
		case ast.OpAdd:
			instr.Value.Real = l + r
		case ast.OpSub:
			instr.Value.Real = l - r
		case ast.OpMul:
			instr.Value.Real = l * r
		case ast.OpDiv:
			if r != 0 {
				instr.Value.Real = l / r
			}
		case ast.OpEq:
			instr.Value.Int = boolToInt(l == r)
		case ast.OpNeq:
			instr.Value.Int = boolToInt(l != r)
		case ast.OpLt:
			instr.Value.Int = boolToInt(l < r)
		case ast.OpLte:
			instr.Value.Int = boolToInt(l <= r)
		case ast.OpGt:
			instr.Value.Int = boolToInt(l > r)
		case ast.OpGte:
			instr.Value.Int = boolToInt(l >= r)
		}
		return
	}
	l, r := lhs.Int, rhs.Int
	switch op {
	case ast.OpAdd:
		instr.Value.Int = l + r
	case ast.OpSub:
		instr.Value.Int = l - r
	case ast.OpMul:
		instr.Value.Int = l * r
	case ast.OpDiv:
		if r != 0 {
			instr.Value.Int = l / r
		}
	case ast.OpMod:
		if r != 0 {
			instr.Value.Int = l % r
		}
	case ast.OpShl:
		instr.Value.Int = l << uint(r)
	case ast.OpShr:
		instr.Value.Int = l >> uint(r)
	case ast.OpBitAnd:
		instr.Value.Int = l & r
	case ast.OpBitOr:
		instr.Value.Int = l | r
	case ast.OpBitXor:
		instr.Value.Int = l ^ r
	case ast.OpEq:
		instr.Value.Int = boolToInt(l == r)
	case ast.OpNeq:
		instr.Value.Int = boolToInt(l != r)
	case ast.OpLt:
		instr.Value.Int = boolToInt(l < r)
	case ast.OpLte:
		instr.Value.Int = boolToInt(l <= r)
	case ast.OpGt:
		instr.Value.Int = boolToInt(l > r)
	case ast.OpGte:
		instr.Value.Int = boolToInt(l >= r)
	case ast.OpLogAnd:
		instr.Value.Int = boolToInt(l != 0 && r != 0)
	case ast.OpLogOr:
		instr.Value.Int = boolToInt(l != 0 || r != 0)
	}
	if t := instr.Value.Type; t != nil && t.Kind == mirtype.KindInt {
		instr.Value.Int = truncOrExtend(instr.Value.Int, t)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (a *Analyzer) analyzeUnop(instr *mir.Instr) {
	operand := instr.Data.Operand
	instr.Value.Type = operand.Value.Type
	instr.Value.Addr = mirtype.AddrRValue
	instr.Value.IsComptime = operand.Value.IsComptime
	if instr.Data.UnOp == ast.OpNot && operand.Value.Type != nil && operand.Value.Type.Kind != mirtype.KindBool {
		a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "'!' requires a bool operand")
	}
	if !instr.Value.IsComptime {
		return
	}
	switch instr.Data.UnOp {
	case ast.OpNeg:
		if operand.Value.Type != nil && operand.Value.Type.Kind == mirtype.KindReal {
			instr.Value.Real = -operand.Value.Real
		} else {
			instr.Value.Int = -operand.Value.Int
		}
	case ast.OpPos:
		instr.Value.Int, instr.Value.Real = operand.Value.Int, operand.Value.Real
	case ast.OpNot:
		instr.Value.Int = boolToInt(operand.Value.Int == 0)
	}
}

// analyzeCast resolves an explicit `cast(T) expr` by picking a CastOp from operand/result kind, signedness and
// bit width.
func (a *Analyzer) analyzeCast(instr *mir.Instr) {
	dst := instr.Data.CastType.Value.TypeV
	src := instr.Data.CastExpr.Value
	if dst == nil {
		dst = a.types().Void
	}
	instr.Data.CastOp = selectCastOp(src.Type, dst)
	if instr.Data.CastOp == mir.CastInvalid {
		a.Sink.Error(diag.CodeInvalidCast, a.loc(instr), diag.CursorWord,
			"no cast from '%s' to '%s'", src.Type, dst)
	}
	instr.Value = src
	instr.Value.Type = dst
	instr.Value.Addr = mirtype.AddrRValue
	if src.IsComptime {
		foldCast(instr, src, dst)
	}
}

func selectCastOp(src, dst *mirtype.Type) mir.CastOp {
	if src == nil || dst == nil {
		return mir.CastInvalid
	}
	if mirtype.Equal(src, dst) {
		return mir.CastNone
	}
	switch {
	case src.Kind == mirtype.KindInt && dst.Kind == mirtype.KindInt:
		switch {
		case dst.IntBits > src.IntBits && src.IntSigned:
			return mir.CastSext
		case dst.IntBits > src.IntBits:
			return mir.CastZext
		case dst.IntBits < src.IntBits:
			return mir.CastTrunc
		default:
			return mir.CastBitcast
		}
	case src.Kind == mirtype.KindReal && dst.Kind == mirtype.KindReal:
		if dst.RealBits > src.RealBits {
			return mir.CastFpext
		}
		return mir.CastFptrunc
	case src.Kind == mirtype.KindReal && dst.Kind == mirtype.KindInt:
		if dst.IntSigned {
			return mir.CastFptosi
		}
		return mir.CastFptoui
	case src.Kind == mirtype.KindInt && dst.Kind == mirtype.KindReal:
		if src.IntSigned {
			return mir.CastSitofp
		}
		return mir.CastUitofp
	case src.Kind == mirtype.KindPtr && dst.Kind == mirtype.KindInt:
		return mir.CastPtrtoint
	case src.Kind == mirtype.KindInt && dst.Kind == mirtype.KindPtr:
		return mir.CastInttoptr
	case src.Kind == mirtype.KindPtr && dst.Kind == mirtype.KindPtr:
		return mir.CastBitcast
	case src.Kind == mirtype.KindNull && dst.Kind == mirtype.KindPtr:
		return mir.CastBitcast
	default:
		return mir.CastInvalid
	}
}

func foldCast(instr *mir.Instr, src mirtype.Value, dst *mirtype.Type) {
	switch instr.Data.CastOp {
	case mir.CastFptosi, mir.CastFptoui:
		instr.Value.Int = int64(src.Real)
	case mir.CastSitofp, mir.CastUitofp:
		instr.Value.Real = float64(src.Int)
	case mir.CastSext, mir.CastZext, mir.CastTrunc, mir.CastBitcast:
		instr.Value.Int = truncOrExtend(src.Int, dst)
	}
	// The value slot was copied wholesale from the operand; zero the payload
	// field the destination type does not use so later folds can't pick up a
	// stale scalar from across the int/real boundary.
	if dst.Kind == mirtype.KindReal {
		instr.Value.Int = 0
	} else {
		instr.Value.Real = 0
	}
}

// truncOrExtend applies Go's native wraparound semantics to model the
// fixed-width integer conversion.
func truncOrExtend(v int64, dst *mirtype.Type) int64 {
	switch dst.IntBits {
	case 8:
		if dst.IntSigned {
			return int64(int8(v))
		}
		return int64(uint8(v))
	case 16:
		if dst.IntSigned {
			return int64(int16(v))
		}
		return int64(uint16(v))
	case 32:
		if dst.IntSigned {
			return int64(int32(v))
		}
		return int64(uint32(v))
	default:
		return v
	}
}

// --- memory addressing -----------------------------------------------------

func (a *Analyzer) analyzeElemPtr(instr *mir.Instr) {
	arr := instr.Data.ArrPtr
	base := arr.Value.Type
	var elem *mirtype.Type
	switch {
	case base != nil && base.Kind == mirtype.KindPtr:
		elem = base.Pointee
	case base != nil && (base.Kind == mirtype.KindArray || base.Kind == mirtype.KindSlice || base.Kind == mirtype.KindVArgs):
		elem = base.ElemType
	default:
		a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "indexed expression is not an array, slice or pointer")
		elem = a.types().Void
	}
	instr.Value = mirtype.Value{Type: a.types().Ptr(elem), Addr: mirtype.AddrRValue}
}

func (a *Analyzer) analyzeMemberPtr(instr *mir.Instr) {
	target := instr.Data.TargetPtr
	base := target.Value.Type
	if base != nil && base.Kind == mirtype.KindPtr {
		base = base.Pointee
	}
	if instr.Data.BuiltinMember != mir.BuiltinMemberNone {
		var elem *mirtype.Type
		if base != nil {
			elem = base.ElemType
			if base.Kind == mirtype.KindString {
				elem = a.types().Int(8, false)
			}
		}
		if instr.Data.BuiltinMember == mir.BuiltinMemberLen {
			instr.Value = mirtype.Value{Type: a.types().Ptr(mirtype.Usize), Addr: mirtype.AddrRValue}
		} else {
			instr.Value = mirtype.Value{Type: a.types().Ptr(a.types().Ptr(elem)), Addr: mirtype.AddrRValue}
		}
		return
	}
	if base == nil || base.Kind != mirtype.KindStruct {
		a.Sink.Error(diag.CodeInvalidType, a.loc(instr), diag.CursorWord, "member access on a non-struct type")
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return
	}
	m := findMember(base, instr.Data.MemberIdent)
	if m == nil {
		a.Sink.Error(diag.CodeUnknownSymbol, a.loc(instr), diag.CursorWord,
			"struct '%s' has no member '%s'", base, instr.Data.MemberIdent)
		instr.Value = mirtype.Value{Type: a.types().Void, Addr: mirtype.AddrRValue}
		return
	}
	instr.Value = mirtype.Value{Type: a.types().Ptr(m.Type), Addr: mirtype.AddrRValue}
}

// findMember looks up a member by name, following a struct's base chain.
func findMember(t *mirtype.Type, name string) *mirtype.Member {
	for _, m := range t.StructMembers {
		if m.Name == name {
			return m
		}
	}
	if t.StructBase != nil {
		return findMember(t.StructBase, name)
	}
	return nil
}

// --- compounds & reflection -------------------------------------------------

func (a *Analyzer) analyzeCompound(instr *mir.Instr) {
	typ := instr.Data.CompoundType.Value.TypeV
	if typ == nil {
		typ = a.types().Void
	}
	allComptime := true
	for _, v := range instr.Data.CompoundValues {
		if !v.Value.IsComptime {
			allComptime = false
		}
	}
	comp := &mirtype.Composite{ZeroInit: instr.Data.IsNaked}
	if allComptime && !instr.Data.IsNaked {
		vals := make([]mirtype.Value, len(instr.Data.CompoundValues))
		for i, v := range instr.Data.CompoundValues {
			vals[i] = v.Value
		}
		if typ.Kind == mirtype.KindStruct {
			comp.Members = vals
		} else {
			comp.Elements = vals
		}
	}
	instr.Value = mirtype.Value{
		Type:       typ,
		Addr:       mirtype.AddrRValue,
		IsComptime: instr.Data.ZeroInitialized || allComptime,
		Composite:  comp,
	}
}

func (a *Analyzer) analyzeSizeof(instr *mir.Instr) {
	typ := instr.Data.Expr.Value.TypeV
	if typ == nil {
		typ = instr.Data.Expr.Value.Type
	}
	size := int64(0)
	if typ != nil {
		size = int64(typ.StoreSize)
	}
	instr.Value = mirtype.Value{Type: mirtype.Usize, Int: size, Addr: mirtype.AddrRValue, IsComptime: true}
}

func (a *Analyzer) analyzeAlignof(instr *mir.Instr) {
	typ := instr.Data.Expr.Value.TypeV
	if typ == nil {
		typ = instr.Data.Expr.Value.Type
	}
	align := int64(0)
	if typ != nil {
		align = int64(typ.Alignment)
	}
	instr.Value = mirtype.Value{Type: mirtype.Usize, Int: align, Addr: mirtype.AddrRValue, IsComptime: true}
}

// analyzeTypeInfo materializes (or retrieves the cached) RTTI descriptor
// instruction for a type.
func (a *Analyzer) analyzeTypeInfo(instr *mir.Instr) {
	typ := instr.Data.Expr.Value.TypeV
	if typ == nil {
		typ = instr.Data.Expr.Value.Type
	}
	if typ == nil {
		typ = a.types().Void
	}
	if cached, ok := a.Module.RTTI(typ); ok {
		instr.Value = cached.Value
		return
	}
	instr.Value = mirtype.Value{Type: a.types().Ptr(a.types().Void), TypeV: typ, Addr: mirtype.AddrRValue, IsComptime: true}
	a.Module.SetRTTI(typ, instr)
}

// analyzeTypeKindOf implements the additive TypeKind reflection primitive:
// cheaper than full TypeInfo,
// returns only the MirTypeKind discriminator as a runtime integer.
func (a *Analyzer) analyzeTypeKindOf(instr *mir.Instr) {
	typ := instr.Data.Expr.Value.TypeV
	if typ == nil {
		typ = instr.Data.Expr.Value.Type
	}
	kind := int64(mirtype.KindInvalid)
	if typ != nil {
		kind = int64(typ.Kind)
	}
	instr.Value = mirtype.Value{Type: mirtype.Usize, Int: kind, Addr: mirtype.AddrRValue, IsComptime: true}
}

func (a *Analyzer) analyzeToAny(instr *mir.Instr) {
	any := a.types().NewStructFwdDecl("any")
	a.types().CompleteStruct(any, []*mirtype.Member{
		{Name: "type_info", Type: a.types().Ptr(a.types().Void)},
		{Name: "data", Type: a.types().Ptr(a.types().Void)},
	}, false, nil)
	instr.Value = mirtype.Value{Type: any, Addr: mirtype.AddrRValue}
}

// analyzeTypeCtor resolves one of the type-constructor instruction kinds into a
// concrete *mirtype.Type wrapped as a comptime type value.
func (a *Analyzer) analyzeTypeCtor(instr *mir.Instr) {
	t := a.types()
	var typ *mirtype.Type
	switch instr.Kind {
	case mir.KindTypeFn:
		ret := instr.Data.TypeRetInstr.Value.TypeV
		if ret == nil {
			ret = t.Void
		}
		var args []*mirtype.Arg
		for i, argInstr := range instr.Data.TypeArgsInstr {
			at := argInstr.Value.TypeV
			if at == nil {
				at = t.Void
			}
			name := ""
			if i < len(instr.Data.TypeArgNames) {
				name = instr.Data.TypeArgNames[i]
			}
			args = append(args, &mirtype.Arg{Name: name, Type: at, LLVMIndex: i})
		}
		typ = t.Fn(args, ret, false)
	case mir.KindTypeStruct:
		fwd := t.NewStructFwdDecl("")
		var members []*mirtype.Member
		for i, mi := range instr.Data.TypeMembersInstr {
			mt := mi.Value.TypeV
			if mt == nil {
				mt = t.Void
			}
			name := ""
			if i < len(instr.Data.TypeArgNames) {
				name = instr.Data.TypeArgNames[i]
			}
			members = append(members, &mirtype.Member{Name: name, Type: mt, Index: i})
		}
		t.CompleteStruct(fwd, members, false, nil)
		typ = fwd
	case mir.KindTypeEnum:
		base := t.Int(32, true)
		if instr.Data.TypeBaseInstr != nil && instr.Data.TypeBaseInstr.Value.TypeV != nil {
			base = instr.Data.TypeBaseInstr.Value.TypeV
		}
		typ = t.NewEnum("", base, nil)
	case mir.KindTypePtr:
		pointee := instr.Data.TypeElemInstr.Value.TypeV
		if pointee == nil {
			pointee = t.Void
		}
		typ = t.Ptr(pointee)
	case mir.KindTypeArray:
		elem := instr.Data.TypeElemInstr.Value.TypeV
		if elem == nil {
			elem = t.Void
		}
		length := instr.Data.TypeLenInstr.Value.Int
		typ = t.Array(elem, length)
	case mir.KindTypeSlice:
		elem := instr.Data.TypeElemInstr.Value.TypeV
		if elem == nil {
			elem = t.Void
		}
		typ = t.Slice(elem)
	case mir.KindTypeVArgs:
		elem := instr.Data.TypeElemInstr.Value.TypeV
		if elem == nil {
			elem = t.Void
		}
		typ = t.VArgs(elem)
	}
	if a.Types != nil && typ != nil {
		a.Types.Materialize(typ)
	}
	instr.Value = mirtype.Value{Type: t.TypeOf, TypeV: typ, Addr: mirtype.AddrRValue, IsComptime: true}
}
