package vm

import (
	"encoding/binary"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// step executes a single instruction. Instructions flagged comptime never
// touch the stack: their value was already folded by the analyzer's parallel
// evaluator, and fetch reads it straight from the value slot.
func (vm *VM) step(instr *mir.Instr) {
	if instr.Unreachable {
		return
	}
	if instr.Value.IsComptime && !mustExecute(instr.Kind) {
		return
	}
	switch instr.Kind {
	case mir.KindConst, mir.KindDeclRef, mir.KindDeclDirectRef, mir.KindArg,
		mir.KindFnProto, mir.KindSetInitializer, mir.KindDeclMember, mir.KindDeclVariant,
		mir.KindSizeof, mir.KindAlignof, mir.KindTypeInfo, mir.KindTypeKind,
		mir.KindTypeFn, mir.KindTypeStruct, mir.KindTypeEnum, mir.KindTypePtr,
		mir.KindTypeArray, mir.KindTypeSlice, mir.KindTypeVArgs, mir.KindBlock:
		// No runtime action: references resolve lazily at their use site and
		// the remaining kinds are analyzer-only.
	case mir.KindDeclVar:
		vm.execDeclVar(instr)
	case mir.KindDeclArg:
		// Slot binding happened at Call time; nothing to execute.
	case mir.KindLoad:
		vm.execLoad(instr)
	case mir.KindStore:
		vm.execStore(instr)
	case mir.KindAddrOf:
		vm.pushResult(instr, encodeU64(vm.pointerOf(instr.Data.Ref)))
	case mir.KindBinop:
		vm.execBinop(instr)
	case mir.KindUnop:
		vm.execUnop(instr)
	case mir.KindCast:
		vm.execCast(instr)
	case mir.KindElemPtr:
		vm.execElemPtr(instr)
	case mir.KindMemberPtr:
		vm.execMemberPtr(instr)
	case mir.KindBr:
		vm.jump(instr.Block, instr.Data.TargetBlk)
	case mir.KindCondBr:
		cond := vm.fetch(instr.Data.Cond)
		if vm.stack.Aborted {
			return
		}
		if cond[0]&1 != 0 {
			vm.jump(instr.Block, instr.Data.ThenBlk)
		} else {
			vm.jump(instr.Block, instr.Data.ElseBlk)
		}
	case mir.KindSwitch:
		vm.execSwitch(instr)
	case mir.KindPhi:
		vm.execPhi(instr)
	case mir.KindCall:
		vm.execCall(instr)
	case mir.KindRet:
		vm.execRet(instr)
	case mir.KindUnreachable:
		vm.fault(instr, "execution reached unreachable code")
	case mir.KindCompound:
		vm.execCompound(instr)
	case mir.KindVArgs:
		vm.execVArgs(instr)
	case mir.KindToAny:
		vm.execToAny(instr)
	default:
		vm.fault(instr, "internal: unhandled instruction kind %s", instr.Kind)
	}
}

// mustExecute lists the kinds that act on machine state even when their value
// slot is comptime: control flow must still transfer, calls must still run,
// stores and declarations must still touch memory. An instruction whose value
// a comptime Ret merely *carries* (analyzeRet copies its operand's value,
// comptime flag included) would otherwise be skipped mid-flight.
func mustExecute(k mir.Kind) bool {
	switch k {
	case mir.KindRet, mir.KindBr, mir.KindCondBr, mir.KindSwitch, mir.KindUnreachable,
		mir.KindCall, mir.KindStore, mir.KindDeclVar:
		return true
	default:
		return false
	}
}

func (vm *VM) jump(from, to *mir.Block) {
	vm.stack.PrevBlock = from
	if to == nil || to.First() == nil {
		vm.stack.PC = nil
		return
	}
	vm.stack.PC = to.First()
}

// --- value plumbing -----------------------------------------------------------

// fetch returns instr's result bytes: comptime values are encoded from the
// value slot, runtime values are read from the instruction's stack slot.
func (vm *VM) fetch(instr *mir.Instr) []byte {
	if instr == nil {
		return nil
	}
	if instr.Kind == mir.KindArg && !instr.Value.IsComptime {
		return vm.fetch(instr.Data.Expr)
	}
	t := instr.Value.Type
	size := 8
	if t != nil && t.StoreSize > 0 {
		size = int(t.StoreSize)
	}
	if instr.Value.IsComptime {
		buf := make([]byte, size)
		if t != nil && t.Kind == mirtype.KindString {
			vm.encodeString(buf, instr)
			return buf
		}
		vm.CopyComptimeToStack(buf, instr.Value, t)
		return buf
	}
	addr, ok := vm.stack.frame.slots[instr.ID]
	if !ok {
		vm.fault(instr, "internal: instruction %%%d has no runtime value", instr.ID)
		return make([]byte, size)
	}
	win := vm.mem(addr, size)
	if win == nil {
		vm.fault(instr, "invalid memory access")
		return make([]byte, size)
	}
	return win
}

// pushResult pushes bytes as instr's runtime result and records its slot.
func (vm *VM) pushResult(instr *mir.Instr, bytes []byte) {
	addr := vm.stack.pushBytes(bytes, alignUp(len(bytes), stackAlign))
	if addr == 0 {
		vm.fault(instr, "stack overflow")
		return
	}
	vm.stack.frame.slots[instr.ID] = addr
}

// pointerOf resolves the address an instruction stands for: declarations
// resolve to their storage, pointer-typed values decode to their pointer, and
// everything else is addressed through its runtime (or materialized comptime)
// result slot.
func (vm *VM) pointerOf(instr *mir.Instr) uint64 {
	if instr == nil {
		return 0
	}
	switch instr.Kind {
	case mir.KindDeclRef, mir.KindDeclDirectRef:
		target := instr.Data.Ref
		if target == nil {
			return 0
		}
		switch target.Kind {
		case mir.KindDeclVar:
			v := target.Data.Var
			if v.IsGlobal {
				return encodePtr(segGlobal, int(v.FrameOffset))
			}
			return encodePtr(segStack, vm.stack.frame.base+int(v.FrameOffset))
		case mir.KindDeclArg:
			idx := target.Data.ArgIndex
			if idx < 0 || idx >= len(vm.stack.frame.argAddrs) {
				return 0
			}
			return vm.stack.frame.argAddrs[idx]
		default:
			return vm.addrOfValue(target)
		}
	case mir.KindElemPtr, mir.KindMemberPtr, mir.KindAddrOf:
		return decodeU64(vm.fetch(instr))
	}
	if t := instr.Value.Type; t != nil && (t.Kind == mirtype.KindPtr || t.Kind == mirtype.KindNull) {
		return decodeU64(vm.fetch(instr))
	}
	return vm.addrOfValue(instr)
}

// addrOfValue returns the address of instr's materialized result, copying a
// comptime value onto the scratch stack first.
func (vm *VM) addrOfValue(instr *mir.Instr) uint64 {
	if !instr.Value.IsComptime {
		return vm.stack.frame.slots[instr.ID]
	}
	bytes := vm.fetch(instr)
	addr := vm.scratch.Alloc(len(bytes))
	if addr == 0 {
		vm.fault(instr, "stack overflow")
		return 0
	}
	copy(vm.mem(addr, len(bytes)), bytes)
	return addr
}

// encodeString interns a string constant's payload in the read-only segment
// and writes its {len, ptr} header into buf.
func (vm *VM) encodeString(buf []byte, instr *mir.Instr) {
	ptr, ok := vm.strCache[instr.ID]
	var payload string
	if instr.Node != nil {
		payload, _ = instr.Node.Data.(string)
	}
	if !ok {
		off := alignUp(vm.rodataTop, stackAlign)
		// NUL-terminate so a string's ptr member is directly usable as a C
		// string through the FFI bridge.
		need := len(payload) + 1
		if off+need > len(vm.rodata) {
			vm.fault(instr, "read-only segment exhausted")
			return
		}
		copy(vm.rodata[off:], payload)
		vm.rodata[off+len(payload)] = 0
		vm.rodataTop = off + need
		ptr = encodePtr(segRodata, off)
		vm.strCache[instr.ID] = ptr
	}
	binary.LittleEndian.PutUint64(buf[0:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(buf[8:], ptr)
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func decodeU64(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(buf)
}

// --- memory instructions ------------------------------------------------------

func (vm *VM) execDeclVar(instr *mir.Instr) {
	v := instr.Data.Var
	if v == nil || v.IsGlobal {
		return
	}
	// Storage was reserved at frame entry; execution only runs the initializer.
	if init := instr.Data.DeclInit; init != nil {
		bytes := vm.fetch(init)
		if vm.stack.Aborted {
			return
		}
		addr := encodePtr(segStack, vm.stack.frame.base+int(v.FrameOffset))
		win := vm.mem(addr, len(bytes))
		if win == nil {
			vm.fault(instr, "invalid memory access")
			return
		}
		copy(win, bytes)
	}
}

func (vm *VM) execLoad(instr *mir.Instr) {
	ptr := vm.pointerOf(instr.Data.Ref)
	if vm.stack.Aborted {
		return
	}
	if ptr == 0 {
		vm.fault(instr, "null pointer dereference")
		return
	}
	size := 8
	if t := instr.Value.Type; t != nil && t.StoreSize > 0 {
		size = int(t.StoreSize)
	}
	win := vm.mem(ptr, size)
	if win == nil {
		vm.fault(instr, "invalid memory access")
		return
	}
	vm.pushResult(instr, win)
}

func (vm *VM) execStore(instr *mir.Instr) {
	src := vm.fetch(instr.Data.StoreSrc)
	if vm.stack.Aborted {
		return
	}
	ptr := vm.pointerOf(instr.Data.StoreDst)
	if vm.stack.Aborted {
		return
	}
	if ptr == 0 {
		vm.fault(instr, "null pointer dereference")
		return
	}
	win := vm.mem(ptr, len(src))
	if win == nil {
		vm.fault(instr, "invalid memory access")
		return
	}
	copy(win, src)
}

func (vm *VM) execElemPtr(instr *mir.Instr) {
	arr := instr.Data.ArrPtr
	idxBytes := vm.fetch(instr.Data.Index)
	if vm.stack.Aborted {
		return
	}
	idxType := instr.Data.Index.Value.Type
	idx := readInt(idxBytes, scalarSize(idxType), idxType == nil || idxType.IntSigned)

	base := arr.Value.Type
	var elem *mirtype.Type
	if et := instr.Value.Type; et != nil && et.Kind == mirtype.KindPtr {
		elem = et.Pointee
	}
	elemSize := int64(8)
	if elem != nil && elem.StoreSize > 0 {
		elemSize = int64(elem.StoreSize)
	}

	switch {
	case base != nil && base.Kind == mirtype.KindArray:
		if idx < 0 || idx >= base.ArrayLen {
			vm.fault(instr, "Array index is out of the bounds! Array index is: %d, but array size is: %d", idx, base.ArrayLen)
			return
		}
		baseAddr := vm.pointerOf(arr)
		vm.pushResult(instr, encodeU64(baseAddr+uint64(idx*elemSize)))
	case base != nil && (base.Kind == mirtype.KindSlice || base.Kind == mirtype.KindVArgs || base.Kind == mirtype.KindString):
		// Fat values carry {len, ptr} at fixed struct offsets
		// (mirtype.SliceLenIndex / SlicePtrIndex).
		baseAddr := vm.pointerOf(arr)
		hdr := vm.mem(baseAddr, 16)
		if hdr == nil {
			vm.fault(instr, "invalid memory access")
			return
		}
		length := int64(binary.LittleEndian.Uint64(hdr[0:]))
		dataPtr := binary.LittleEndian.Uint64(hdr[8:])
		if idx < 0 || idx >= length {
			vm.fault(instr, "Array index is out of the bounds! Array index is: %d, but array size is: %d", idx, length)
			return
		}
		vm.pushResult(instr, encodeU64(dataPtr+uint64(idx*elemSize)))
	default:
		// Raw pointer arithmetic, unchecked.
		ptr := vm.pointerOf(arr)
		vm.pushResult(instr, encodeU64(ptr+uint64(idx*elemSize)))
	}
}

func (vm *VM) execMemberPtr(instr *mir.Instr) {
	target := instr.Data.TargetPtr
	base := target.Value.Type
	baseAddr := vm.pointerOf(target)
	if vm.stack.Aborted {
		return
	}
	if base != nil && base.Kind == mirtype.KindPtr {
		base = base.Pointee
	}

	if instr.Data.BuiltinMember != mir.BuiltinMemberNone {
		if base != nil && base.Kind == mirtype.KindArray {
			// Arrays have no {len, ptr} header; synthesize the member on the
			// scratch stack.
			var cell []byte
			if instr.Data.BuiltinMember == mir.BuiltinMemberLen {
				cell = encodeU64(uint64(base.ArrayLen))
			} else {
				cell = encodeU64(baseAddr)
			}
			addr := vm.scratch.Alloc(8)
			copy(vm.mem(addr, 8), cell)
			vm.pushResult(instr, encodeU64(addr))
			return
		}
		off := uint64(0)
		if instr.Data.BuiltinMember == mir.BuiltinMemberPtr {
			off = 8
		}
		vm.pushResult(instr, encodeU64(baseAddr+off))
		return
	}

	if base == nil || base.Kind != mirtype.KindStruct {
		vm.fault(instr, "internal: member access on non-struct value")
		return
	}
	m := structMember(base, instr.Data.MemberIdent)
	if m == nil {
		vm.fault(instr, "internal: unresolved member '%s'", instr.Data.MemberIdent)
		return
	}
	vm.pushResult(instr, encodeU64(baseAddr+uint64(m.Offset)))
}

func structMember(t *mirtype.Type, name string) *mirtype.Member {
	for _, m := range t.StructMembers {
		if m.Name == name {
			return m
		}
	}
	if t.StructBase != nil {
		return structMember(t.StructBase, name)
	}
	return nil
}

// --- arithmetic ---------------------------------------------------------------

func scalarSize(t *mirtype.Type) int {
	if t == nil || t.StoreSize == 0 {
		return 8
	}
	return int(t.StoreSize)
}

func (vm *VM) execBinop(instr *mir.Instr) {
	lhs, rhs := instr.Data.Lhs, instr.Data.Rhs
	lb := vm.fetch(lhs)
	rb := vm.fetch(rhs)
	if vm.stack.Aborted {
		return
	}
	opType := lhs.Value.Type
	resType := instr.Value.Type
	op := instr.Data.BinOp

	if opType != nil && opType.Kind == mirtype.KindReal {
		l := readReal(lb, opType.RealBits)
		r := readReal(rb, opType.RealBits)
		vm.pushRealResult(instr, op, l, r, resType)
		return
	}

	signed := opType != nil && opType.Kind == mirtype.KindInt && opType.IntSigned
	l := readInt(lb, scalarSize(opType), signed)
	r := readInt(rb, scalarSize(opType), signed)

	var out int64
	switch op {
	case ast.OpAdd:
		out = l + r
	case ast.OpSub:
		out = l - r
	case ast.OpMul:
		out = l * r
	case ast.OpDiv:
		if r == 0 {
			vm.fault(instr, "division by zero")
			return
		}
		out = l / r
	case ast.OpMod:
		if r == 0 {
			vm.fault(instr, "division by zero")
			return
		}
		out = l % r
	case ast.OpShl:
		out = l << uint64(r)
	case ast.OpShr:
		if signed {
			out = l >> uint64(r)
		} else {
			out = int64(uint64(l) >> uint64(r))
		}
	case ast.OpBitAnd:
		out = l & r
	case ast.OpBitOr:
		out = l | r
	case ast.OpBitXor:
		out = l ^ r
	case ast.OpEq:
		out = b2i(l == r)
	case ast.OpNeq:
		out = b2i(l != r)
	case ast.OpLt:
		out = b2i(intLess(l, r, signed))
	case ast.OpLte:
		out = b2i(!intLess(r, l, signed))
	case ast.OpGt:
		out = b2i(intLess(r, l, signed))
	case ast.OpGte:
		out = b2i(!intLess(l, r, signed))
	case ast.OpLogAnd:
		out = b2i(l != 0 && r != 0)
	case ast.OpLogOr:
		out = b2i(l != 0 || r != 0)
	}
	buf := make([]byte, scalarSize(resType))
	putInt(buf, out, len(buf))
	vm.pushResult(instr, buf)
}

func (vm *VM) pushRealResult(instr *mir.Instr, op ast.BinOp, l, r float64, resType *mirtype.Type) {
	var outI int64
	var outR float64
	isCmp := false
	switch op {
	case ast.OpAdd:
		outR = l + r
	case ast.OpSub:
		outR = l - r
	case ast.OpMul:
		outR = l * r
	case ast.OpDiv:
		if r == 0 {
			vm.fault(instr, "division by zero")
			return
		}
		outR = l / r
	case ast.OpEq:
		outI, isCmp = b2i(l == r), true
	case ast.OpNeq:
		outI, isCmp = b2i(l != r), true
	case ast.OpLt:
		outI, isCmp = b2i(l < r), true
	case ast.OpLte:
		outI, isCmp = b2i(l <= r), true
	case ast.OpGt:
		outI, isCmp = b2i(l > r), true
	case ast.OpGte:
		outI, isCmp = b2i(l >= r), true
	default:
		vm.fault(instr, "internal: invalid real operator")
		return
	}
	buf := make([]byte, scalarSize(resType))
	if isCmp {
		putInt(buf, outI, len(buf))
	} else {
		encodeScalar(buf, mirtype.Value{Real: outR}, resType)
	}
	vm.pushResult(instr, buf)
}

func intLess(l, r int64, signed bool) bool {
	if signed {
		return l < r
	}
	return uint64(l) < uint64(r)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) execUnop(instr *mir.Instr) {
	operand := instr.Data.Operand
	b := vm.fetch(operand)
	if vm.stack.Aborted {
		return
	}
	t := operand.Value.Type
	buf := make([]byte, scalarSize(instr.Value.Type))
	switch {
	case t != nil && t.Kind == mirtype.KindReal:
		v := readReal(b, t.RealBits)
		if instr.Data.UnOp == ast.OpNeg {
			v = -v
		}
		encodeScalar(buf, mirtype.Value{Real: v}, instr.Value.Type)
	default:
		v := readInt(b, scalarSize(t), t == nil || t.IntSigned)
		switch instr.Data.UnOp {
		case ast.OpNeg:
			v = -v
		case ast.OpNot:
			v = b2i(v == 0)
		}
		putInt(buf, v, len(buf))
	}
	vm.pushResult(instr, buf)
}

func (vm *VM) execCast(instr *mir.Instr) {
	src := instr.Data.CastExpr
	b := vm.fetch(src)
	if vm.stack.Aborted {
		return
	}
	srcType := src.Value.Type
	dstType := instr.Value.Type
	buf := make([]byte, scalarSize(dstType))
	switch instr.Data.CastOp {
	case mir.CastNone, mir.CastBitcast, mir.CastPtrtoint, mir.CastInttoptr,
		mir.CastSext, mir.CastZext, mir.CastTrunc:
		signed := srcType != nil && srcType.IntSigned && instr.Data.CastOp != mir.CastZext
		v := readInt(b, scalarSize(srcType), signed)
		putInt(buf, v, len(buf))
	case mir.CastFptrunc, mir.CastFpext:
		v := readReal(b, srcType.RealBits)
		encodeScalar(buf, mirtype.Value{Real: v}, dstType)
	case mir.CastFptosi, mir.CastFptoui:
		v := readReal(b, srcType.RealBits)
		putInt(buf, int64(v), len(buf))
	case mir.CastSitofp, mir.CastUitofp:
		v := readInt(b, scalarSize(srcType), srcType != nil && srcType.IntSigned)
		encodeScalar(buf, mirtype.Value{Real: float64(v)}, dstType)
	default:
		copy(buf, b)
	}
	vm.pushResult(instr, buf)
}

// --- control flow -------------------------------------------------------------

func (vm *VM) execSwitch(instr *mir.Instr) {
	vb := vm.fetch(instr.Data.SwitchValue)
	if vm.stack.Aborted {
		return
	}
	t := instr.Data.SwitchValue.Value.Type
	v := readInt(vb, scalarSize(t), t != nil && t.IntSigned)
	for _, c := range instr.Data.SwitchCases {
		if c.OnValue != nil && c.OnValue.Value.Int == v {
			vm.jump(instr.Block, c.Block)
			return
		}
	}
	vm.jump(instr.Block, instr.Data.DefaultBlk)
}

func (vm *VM) execPhi(instr *mir.Instr) {
	for _, in := range instr.Data.PhiIncoming {
		if in.Block == vm.stack.PrevBlock {
			bytes := vm.fetch(in.Value)
			if vm.stack.Aborted {
				return
			}
			vm.pushResult(instr, append([]byte(nil), bytes...))
			return
		}
	}
	vm.fault(instr, "internal: phi has no incoming edge for the previous block")
}

// --- calls --------------------------------------------------------------------

// calleeFn resolves the function a Call targets: the analyzer's folded
// function handle when the callee is a direct reference, or a function id
// loaded through a function pointer otherwise.
func (vm *VM) calleeFn(call *mir.Instr) *mir.Fn {
	callee := call.Data.Callee
	if callee == nil {
		return nil
	}
	if fn, ok := callee.Value.FnV.(*mir.Fn); ok && fn != nil {
		return fn
	}
	if !callee.Value.IsComptime {
		id := decodeU64(vm.fetch(callee))
		if fn, ok := vm.fnsByID[id]; ok {
			return fn
		}
	}
	return nil
}

func (vm *VM) execCall(instr *mir.Instr) {
	fn := vm.calleeFn(instr)
	if fn == nil {
		vm.fault(instr, "internal: call target did not resolve to a function")
		return
	}
	if fn.Linkage == mir.LinkageExtern {
		vm.execExternCall(instr, fn)
		return
	}
	if fn.Entry == nil {
		vm.fault(instr, "function '%s' has no body", fn.Name)
		return
	}

	// Argument values are fetched in the caller's frame, then copied into the
	// callee's fresh frame.
	argBytes := make([][]byte, len(instr.Data.Args))
	argTypes := make([]*mirtype.Type, len(instr.Data.Args))
	for i, arg := range instr.Data.Args {
		argBytes[i] = append([]byte(nil), vm.fetch(arg)...)
		argTypes[i] = arg.Value.Type
		if vm.stack.Aborted {
			return
		}
	}

	frame := vm.stack.PushFrame(instr, fn)
	for i, b := range argBytes {
		t := argTypes[i]
		if t == nil {
			t = vm.Module.Types.Void
		}
		addr := vm.stack.Push(b, t)
		if addr == 0 {
			vm.fault(instr, "stack overflow")
			return
		}
		frame.argAddrs = append(frame.argAddrs, addr)
	}
	vm.allocLocals(fn)
	vm.stack.PrevBlock = nil
	vm.stack.PC = fn.Entry.First()
}

// allocLocals reserves every local's storage at frame entry, the moral
// equivalent of the init block's allocas, so a
// declaration revisited inside a loop body reuses one slot instead of growing
// the frame per iteration.
func (vm *VM) allocLocals(fn *mir.Fn) {
	for _, blk := range fn.Blocks {
		for i := blk.First(); i != nil; i = i.Next {
			if i.Kind == mir.KindDeclVar && i.Data.Var != nil && !i.Data.Var.IsGlobal {
				if vm.stack.AllocVar(i.Data.Var) == 0 {
					vm.fault(i, "stack overflow")
					return
				}
			}
		}
	}
}

func (vm *VM) execRet(instr *mir.Instr) {
	var retBytes []byte
	if rv := instr.Data.RetValue; rv != nil {
		retBytes = append([]byte(nil), vm.fetch(rv)...)
		if vm.stack.Aborted {
			return
		}
	}
	caller := vm.stack.PopFrame()
	if caller == nil {
		vm.result = retBytes
		vm.stack.PC = nil
		return
	}
	if len(retBytes) > 0 {
		addr := vm.stack.pushBytes(retBytes, alignUp(len(retBytes), stackAlign))
		if addr == 0 {
			vm.fault(instr, "stack overflow")
			return
		}
		vm.stack.frame.slots[caller.ID] = addr
	}
	vm.stack.PC = caller.Next
}

// --- composites & reflection --------------------------------------------------

func (vm *VM) execCompound(instr *mir.Instr) {
	t := instr.Value.Type
	size := scalarSize(t)
	if t != nil && t.StoreSize > 0 {
		size = int(t.StoreSize)
	}
	buf := make([]byte, size)
	if !instr.Data.ZeroInitialized {
		switch {
		case t != nil && t.Kind == mirtype.KindStruct:
			for i, v := range instr.Data.CompoundValues {
				if i >= len(t.StructMembers) {
					break
				}
				m := t.StructMembers[i]
				copy(buf[m.Offset:], vm.fetch(v))
			}
		case t != nil && t.Kind == mirtype.KindArray:
			stride := int(t.ElemType.StoreSize)
			for i, v := range instr.Data.CompoundValues {
				copy(buf[i*stride:], vm.fetch(v))
			}
		}
		if vm.stack.Aborted {
			return
		}
	}
	vm.pushResult(instr, buf)
}

func (vm *VM) execVArgs(instr *mir.Instr) {
	elemSize := 8
	if instr.Data.VArgsType != nil && instr.Data.VArgsType.StoreSize > 0 {
		elemSize = int(instr.Data.VArgsType.StoreSize)
	}
	arr := vm.scratch.Alloc(elemSize * len(instr.Data.VArgsValues))
	for i, v := range instr.Data.VArgsValues {
		copy(vm.mem(arr+uint64(i*elemSize), elemSize), vm.fetch(v))
		if vm.stack.Aborted {
			return
		}
	}
	hdr := make([]byte, 16)
	binary.LittleEndian.PutUint64(hdr[0:], uint64(len(instr.Data.VArgsValues)))
	binary.LittleEndian.PutUint64(hdr[8:], arr)
	vm.pushResult(instr, hdr)
}

func (vm *VM) execToAny(instr *mir.Instr) {
	expr := instr.Data.Expr
	dataPtr := vm.addrOfValue(expr)
	if vm.stack.Aborted {
		return
	}
	t := expr.Value.Type
	if tv := expr.Value.TypeV; tv != nil {
		t = tv
	}
	hdr := make([]byte, 16)
	binary.LittleEndian.PutUint64(hdr[0:], vm.rttiPtr(t))
	binary.LittleEndian.PutUint64(hdr[8:], dataPtr)
	vm.pushResult(instr, hdr)
}

// rttiPtr returns (allocating on first use) the static-segment address of the
// RTTI descriptor {kind, size, alignment} for t.
func (vm *VM) rttiPtr(t *mirtype.Type) uint64 {
	if t == nil {
		return 0
	}
	if p, ok := vm.rtti[t.ID()]; ok {
		return p
	}
	vm.globalTop = alignUp(vm.globalTop, stackAlign)
	off := vm.globalTop
	vm.globalTop += 24
	binary.LittleEndian.PutUint64(vm.globals[off:], uint64(t.Kind))
	binary.LittleEndian.PutUint64(vm.globals[off+8:], t.StoreSize)
	binary.LittleEndian.PutUint64(vm.globals[off+16:], uint64(t.Alignment))
	p := encodePtr(segGlobal, off)
	vm.rtti[t.ID()] = p
	return p
}

// --- extern calls -------------------------------------------------------------

func (vm *VM) execExternCall(instr *mir.Instr, fn *mir.Fn) {
	if vm.Bridge == nil {
		vm.reportFFI(instr, diag.CodeSymbolNotFound, "external symbol '%s' not found", fn.Name)
		vm.fault(instr, "external symbol '%s' not found", fn.Name)
		return
	}
	if !fn.FFIResolved {
		if err := vm.Bridge.Resolve(fn); err != nil {
			vm.reportFFI(instr, diag.CodeSymbolNotFound, "external symbol '%s' not found", fn.Name)
			vm.fault(instr, "external symbol '%s' not found: %v", fn.Name, err)
			return
		}
	}

	args := make([]ExternArg, 0, len(instr.Data.Args))
	for _, arg := range instr.Data.Args {
		b := vm.fetch(arg)
		if vm.stack.Aborted {
			return
		}
		t := arg.Value.Type
		ea := ExternArg{Type: t}
		switch {
		case t != nil && t.Kind == mirtype.KindReal:
			ea.Float = readReal(b, t.RealBits)
		case t != nil && (t.Kind == mirtype.KindFn || (t.Kind == mirtype.KindPtr && t.Pointee != nil && t.Pointee.Kind == mirtype.KindFn)):
			if cb, ok := arg.Value.FnV.(*mir.Fn); ok {
				ea.Fn = cb
			}
		case t != nil && (t.Kind == mirtype.KindPtr || t.Kind == mirtype.KindNull):
			enc := decodeU64(b)
			ea.Word = enc
			ea.Ptr = vm.hostPointer(enc)
		default:
			ea.Word = uint64(readInt(b, len(b), t != nil && t.IntSigned))
		}
		args = append(args, ea)
	}

	ret, err := vm.Bridge.Call(fn, args)
	if err != nil {
		vm.fault(instr, "external call to '%s' failed: %v", fn.Name, err)
		return
	}
	retType := fn.Type.FnRet
	if retType == nil || retType.Kind == mirtype.KindVoid {
		return
	}
	buf := make([]byte, scalarSize(retType))
	if retType.Kind == mirtype.KindReal {
		encodeScalar(buf, mirtype.Value{Real: ret.Float}, retType)
	} else {
		putInt(buf, int64(ret.Word), len(buf))
	}
	vm.pushResult(instr, buf)
}

func (vm *VM) reportFFI(instr *mir.Instr, code diag.Code, format string, args ...interface{}) {
	if vm.Sink == nil {
		return
	}
	vm.Sink.Error(code, vm.loc(instr), diag.CursorWord, format, args...)
}
