package mir

// Operands returns the value-producing instructions i consumes, in evaluation
// order. The analyzer bumps each operand's RefCount from here. The VM does not
// call it and executes every instruction regardless of RefCount.
func Operands(i *Instr) []*Instr {
	d := &i.Data
	switch i.Kind {
	case KindDeclVar:
		return pick(d.DeclType, d.DeclInit)
	case KindDeclDirectRef, KindLoad, KindAddrOf:
		return pick(d.Ref)
	case KindStore:
		return pick(d.StoreSrc, d.StoreDst)
	case KindBinop:
		return pick(d.Lhs, d.Rhs)
	case KindUnop:
		return pick(d.Operand)
	case KindCast:
		return pick(d.CastType, d.CastExpr)
	case KindElemPtr:
		return pick(d.ArrPtr, d.Index)
	case KindMemberPtr:
		return pick(d.TargetPtr)
	case KindCall:
		ops := pick(d.Callee)
		ops = append(ops, d.Args...)
		return ops
	case KindArg:
		return pick(d.Expr)
	case KindCondBr:
		return pick(d.Cond)
	case KindSwitch:
		ops := pick(d.SwitchValue)
		for _, c := range d.SwitchCases {
			if c.OnValue != nil {
				ops = append(ops, c.OnValue)
			}
		}
		return ops
	case KindRet:
		return pick(d.RetValue)
	case KindPhi:
		var ops []*Instr
		for _, in := range d.PhiIncoming {
			if in.Value != nil {
				ops = append(ops, in.Value)
			}
		}
		return ops
	case KindCompound:
		ops := pick(d.CompoundType)
		ops = append(ops, d.CompoundValues...)
		return ops
	case KindVArgs:
		return d.VArgsValues
	case KindSizeof, KindAlignof, KindTypeInfo, KindTypeKind, KindToAny:
		return pick(d.Expr)
	case KindFnProto:
		return pick(d.FnTypeInstr, d.FnUserType)
	case KindTypeFn:
		ops := pick(d.TypeRetInstr)
		ops = append(ops, d.TypeArgsInstr...)
		return ops
	case KindTypeStruct:
		ops := pick(d.TypeBaseInstr)
		ops = append(ops, d.TypeMembersInstr...)
		return ops
	case KindTypeEnum:
		ops := pick(d.TypeBaseInstr)
		ops = append(ops, d.TypeVariantsInstr...)
		return ops
	case KindTypePtr, KindTypeSlice, KindTypeVArgs:
		return pick(d.TypeElemInstr)
	case KindTypeArray:
		return pick(d.TypeLenInstr, d.TypeElemInstr)
	case KindSetInitializer:
		return pick(d.InitDest, d.InitSrc)
	default:
		return nil
	}
}

func pick(instrs ...*Instr) []*Instr {
	out := make([]*Instr, 0, len(instrs))
	for _, i := range instrs {
		if i != nil {
			out = append(out, i)
		}
	}
	return out
}
