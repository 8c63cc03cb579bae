package mir

import (
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
)

// Builder lowers an ast.Node tree into a Module's MIR. It holds only the state
// needed to emit a linear, unanalyzed instruction stream: a cursor block, the
// innermost loop's break/continue targets, and a reference to the Module being
// built. Type resolution, symbol lookup and constant folding are deliberately
// NOT done here — the analyzer owns those, which is why DeclVar/DeclRef/
// type-constructor instructions carry unresolved names and nested instruction
// sub-expressions rather than resolved pointers.
type Builder struct {
	Module *Module
	Sink   *diag.Sink

	cur *Block // current insertion point; the global (or unit) block while building top-level declarations

	loopBreak, loopContinue []*Block // stack of enclosing loop targets, innermost last
}

// NewBuilder creates a Builder that emits into m, reporting diagnostics to sink.
func NewBuilder(m *Module, sink *diag.Sink) *Builder {
	return &Builder{Module: m, Sink: sink, cur: m.Global}
}

// NewUnitBuilder creates a Builder emitting top-level declarations into a
// detached unit block instead of the global block, so independent units can be
// lowered from worker goroutines and spliced afterwards.
func NewUnitBuilder(m *Module, sink *diag.Sink, unit *Block) *Builder {
	return &Builder{Module: m, Sink: sink, cur: unit}
}

// BuildUnit lowers every top-level declaration of the unit's root node (expected
// Kind == KindUnitBlock) into the module's global block.
func (b *Builder) BuildUnit(unit *ast.Node) {
	if unit.Kind != ast.KindUnitBlock {
		panic("mir: BuildUnit requires a KindUnitBlock root")
	}
	for _, decl := range unit.Children {
		b.buildTopLevel(decl)
	}
}

func (b *Builder) buildTopLevel(n *ast.Node) {
	switch n.Kind {
	case ast.KindVarDecl:
		b.buildDeclVar(n, true)
	case ast.KindFnLit:
		b.buildFnProto(n)
	default:
		b.Sink.Error(diag.CodeInvalidExpr, n.Loc, diag.CursorWord, "expected a declaration at unit scope")
	}
}

// --- declarations -----------------------------------------------------------

// buildDeclVar emits a DeclVar instruction for a `name: Type = init` binding.
// The type and initializer are each represented as a nested instruction
// sub-expression (a "thunk") rather than eagerly resolved, so the analyzer can
// suspend on an unresolved identifier inside either and resume later.
func (b *Builder) buildDeclVar(n *ast.Node, global bool) *Instr {
	nameNode, typeNode, initNode := n.Children[0], n.Children[1], (*ast.Node)(nil)
	if len(n.Children) > 2 {
		initNode = n.Children[2]
	}
	name, _ := nameNode.Data.(string)

	// Allocate (but don't yet append) the DeclVar instruction, and register its
	// scope entry immediately so a same-scope forward reference resolves to it;
	// the instruction is only appended to the block below, after its type/init
	// operands, so block order stays operands-before-use.
	instr := b.alloc(KindDeclVar, n)
	v := b.Module.NewVar(name, nil, global)
	instr.Data.Var = v

	// A parser-created entry with no declaring instruction yet is filled in;
	// an entry that already points at a declaration is a redeclaration.
	if entry, ok := n.Scope.LookupLocal(name); ok {
		if entry.Instr != nil {
			b.Sink.ErrorWithSecondary(diag.CodeDuplicateSymbol, n.Loc, entry.Node.Loc, "previously declared here",
				"symbol '%s' already declared in this scope", name)
		} else {
			entry.Instr = instr
		}
	} else if entry, fresh := n.Scope.Declare(name, n); fresh {
		entry.Instr = instr
	}

	if typeNode != nil {
		instr.Data.DeclType = b.buildExpr(typeNode)
	}
	if initNode != nil {
		instr.Data.DeclInit = b.buildExpr(initNode)
	}
	b.appendInstr(instr)
	if global {
		v.Initializer = instr.Data.DeclInit
	}
	return instr
}

// buildFnProto emits a FnProto instruction for a function literal/declaration and,
// if it has a body, lowers the body into the function's blocks.
func (b *Builder) buildFnProto(n *ast.Node) *Instr {
	nameNode := n.Children[0]
	typeNode := n.Children[1]
	var bodyNode *ast.Node
	if len(n.Children) > 2 {
		bodyNode = n.Children[2]
	}
	name, _ := nameNode.Data.(string)
	flags, _ := n.Data.(ast.FnFlags)

	// Same alloc-then-append-after-operands discipline as buildDeclVar, and for
	// the same reason plus one more: a function must be able to call itself, so
	// its scope entry has to point at this instruction before its own type
	// expression (and certainly before its body) is built.
	instr := b.alloc(KindFnProto, n)

	fn, fresh := b.Module.NewFn(name, nil)
	if !fresh {
		b.Sink.Error(diag.CodeDuplicateSymbol, n.Loc, diag.CursorWord, "symbol '%s' already declared in this scope", name)
	}
	instr.Data.Fn = fn

	if flags.Extern {
		fn.Linkage = LinkageExtern
		fn.LibName = flags.LibName
	}
	if flags.Test {
		b.Module.MarkTest(fn)
	}
	if name == "main" {
		b.Module.SetEntry(fn)
	}

	if entry, ok := n.Scope.LookupLocal(name); ok {
		entry.Instr = instr
	} else if entry, freshEntry := n.Scope.Declare(name, n); freshEntry {
		entry.Instr = instr
	}

	instr.Data.FnTypeInstr = b.buildExpr(typeNode)
	b.appendInstr(instr)

	if bodyNode != nil {
		prevCur := b.cur
		entryBlk := fn.NewBlock("entry", b.Module.nextID)
		b.cur = entryBlk
		b.bindParams(typeNode, bodyNode)
		b.buildBlock(bodyNode)
		b.ensureTerminated(n)
		b.cur = prevCur
	}
	return instr
}

// bindParams emits one DeclArg instruction per function parameter into the entry
// block and binds the parameter name into the body's scope, so DeclRefs inside
// the body resolve to the argument's call-frame slot.
func (b *Builder) bindParams(typeNode, bodyNode *ast.Node) {
	if typeNode.Kind != ast.KindFnType {
		return
	}
	idx := 0
	for _, p := range typeNode.Children[1:] {
		if p.Kind != ast.KindParam {
			idx++
			continue
		}
		name, _ := p.Data.(string)
		declArg := b.emit(KindDeclArg, p)
		declArg.Data.ArgIndex = idx
		if entry, fresh := bodyNode.Scope.Declare(name, p); fresh {
			entry.Instr = declArg
		} else {
			b.Sink.Error(diag.CodeDuplicateSymbol, p.Loc, diag.CursorWord, "symbol '%s' already declared in this scope", name)
		}
		idx++
	}
}

// ensureTerminated appends an implicit `Ret void` if the current block fell off
// the end of a function body without an explicit return.
func (b *Builder) ensureTerminated(at *ast.Node) {
	if b.cur.Terminated() {
		return
	}
	ret := b.emit(KindRet, at)
	ret.Implicit = true
}

// --- statements ---------------------------------------------------------------

func (b *Builder) buildBlock(n *ast.Node) {
	for _, stmt := range n.Children {
		if b.cur.Terminated() {
			// Dead code after a terminator is still lowered (so the analyzer
			// resolves its names for diagnostics), but into a fresh non-emitted
			// block. Only the first such statement per function is recorded;
			// the analyzer warns once.
			fn := b.cur.Fn
			if fn != nil && fn.FirstUnreachableLoc == nil {
				loc := stmt.Loc
				fn.FirstUnreachableLoc = &loc
			}
			dead := fn.NewBlock("dead", b.Module.nextID)
			dead.NoEmit = true
			b.cur = dead
		}
		b.buildStmt(stmt)
	}
}

func (b *Builder) buildStmt(n *ast.Node) *Instr {
	switch n.Kind {
	case ast.KindVarDecl:
		return b.buildDeclVar(n, false)
	case ast.KindReturn:
		return b.buildReturn(n)
	case ast.KindIf:
		b.buildIf(n)
		return nil
	case ast.KindLoop:
		b.buildLoop(n)
		return nil
	case ast.KindBreak:
		return b.buildBreak(n)
	case ast.KindContinue:
		return b.buildContinue(n)
	case ast.KindAssign:
		return b.buildAssign(n)
	case ast.KindCompoundAssign:
		return b.buildCompoundAssign(n)
	case ast.KindBlock:
		b.buildBlock(n)
		return nil
	case ast.KindExprStmt:
		return b.buildExpr(n.Children[0])
	default:
		return b.buildExpr(n)
	}
}

func (b *Builder) buildReturn(n *ast.Node) *Instr {
	var retValue *Instr
	if len(n.Children) > 0 {
		retValue = b.buildExpr(n.Children[0])
	}
	instr := b.emit(KindRet, n)
	instr.Data.RetValue = retValue
	return instr
}

// buildIf lowers `if cond { then } else { els }` into a CondBr plus then/else/
// merge blocks. An absent else branch still gets an (empty) else block that
// falls straight through to merge, keeping the CFG shape uniform.
func (b *Builder) buildIf(n *ast.Node) {
	condNode, thenNode := n.Children[0], n.Children[1]
	var elseNode *ast.Node
	if len(n.Children) > 2 {
		elseNode = n.Children[2]
	}

	cond := b.buildExpr(condNode)
	fn := b.cur.Fn
	thenBlk := fn.NewBlock("if.then", b.Module.nextID)
	elseBlk := fn.NewBlock("if.else", b.Module.nextID)
	mergeBlk := fn.NewBlock("if.merge", b.Module.nextID)

	br := b.emit(KindCondBr, n)
	br.Data.Cond = cond
	br.Data.ThenBlk = thenBlk
	br.Data.ElseBlk = elseBlk

	b.cur = thenBlk
	b.buildBlock(thenNode)
	if !b.cur.Terminated() {
		jmp := b.emit(KindBr, n)
		jmp.Data.TargetBlk = mergeBlk
	}

	b.cur = elseBlk
	if elseNode != nil {
		b.buildBlock(elseNode)
	}
	if !b.cur.Terminated() {
		jmp := b.emit(KindBr, n)
		jmp.Data.TargetBlk = mergeBlk
	}

	b.cur = mergeBlk
}

// buildLoop lowers a `loop [cond] { body }` into head/body/exit blocks, matching
// the language's single loop construct (both counted and
// conditional loops desugar to the same head-test shape; a missing condition
// means "loop forever", only escapable via break/return).
func (b *Builder) buildLoop(n *ast.Node) {
	var condNode *ast.Node
	var bodyNode *ast.Node
	if len(n.Children) > 1 {
		condNode, bodyNode = n.Children[0], n.Children[1]
	} else {
		bodyNode = n.Children[0]
	}

	fn := b.cur.Fn
	headBlk := fn.NewBlock("loop.head", b.Module.nextID)
	bodyBlk := fn.NewBlock("loop.body", b.Module.nextID)
	exitBlk := fn.NewBlock("loop.exit", b.Module.nextID)

	if !b.cur.Terminated() {
		jmp := b.emit(KindBr, n)
		jmp.Data.TargetBlk = headBlk
	}

	b.cur = headBlk
	if condNode != nil {
		cond := b.buildExpr(condNode)
		br := b.emit(KindCondBr, n)
		br.Data.Cond = cond
		br.Data.ThenBlk = bodyBlk
		br.Data.ElseBlk = exitBlk
	} else {
		jmp := b.emit(KindBr, n)
		jmp.Data.TargetBlk = bodyBlk
	}

	b.loopBreak = append(b.loopBreak, exitBlk)
	b.loopContinue = append(b.loopContinue, headBlk)

	b.cur = bodyBlk
	b.buildBlock(bodyNode)
	if !b.cur.Terminated() {
		jmp := b.emit(KindBr, n)
		jmp.Data.TargetBlk = headBlk
	}

	b.loopBreak = b.loopBreak[:len(b.loopBreak)-1]
	b.loopContinue = b.loopContinue[:len(b.loopContinue)-1]

	b.cur = exitBlk
}

func (b *Builder) buildBreak(n *ast.Node) *Instr {
	if len(b.loopBreak) == 0 {
		b.Sink.Error(diag.CodeInvalidExpr, n.Loc, diag.CursorWord, "break outside a loop")
		return nil
	}
	jmp := b.emit(KindBr, n)
	jmp.Data.TargetBlk = b.loopBreak[len(b.loopBreak)-1]
	return jmp
}

func (b *Builder) buildContinue(n *ast.Node) *Instr {
	if len(b.loopContinue) == 0 {
		b.Sink.Error(diag.CodeInvalidExpr, n.Loc, diag.CursorWord, "continue outside a loop")
		return nil
	}
	jmp := b.emit(KindBr, n)
	jmp.Data.TargetBlk = b.loopContinue[len(b.loopContinue)-1]
	return jmp
}

func (b *Builder) buildAssign(n *ast.Node) *Instr {
	lhs, rhs := n.Children[0], n.Children[1]
	dst := b.buildLValue(lhs)
	src := b.buildExpr(rhs)
	store := b.emit(KindStore, n)
	store.Data.StoreDst = dst
	store.Data.StoreSrc = src
	return store
}

// buildCompoundAssign lowers `lhs op= rhs` into `lhs = lhs op rhs`'s MIR: a Load
// of the current value, a Binop, and a Store back — there is no dedicated
// compound-assign MIR instruction.
func (b *Builder) buildCompoundAssign(n *ast.Node) *Instr {
	lhs, rhs := n.Children[0], n.Children[1]
	op, _ := n.Data.(ast.BinOp)

	dst := b.buildLValue(lhs)
	load := b.emit(KindLoad, lhs)
	load.Data.Ref = dst

	rhsInstr := b.buildExpr(rhs)

	binop := b.emit(KindBinop, n)
	binop.Data.BinOp = op
	binop.Data.Lhs = load
	binop.Data.Rhs = rhsInstr

	store := b.emit(KindStore, n)
	store.Data.StoreDst = dst
	store.Data.StoreSrc = binop
	return store
}

// buildLValue lowers an expression used as an assignment target into the Instr
// that stands for its address: a DeclRef for an identifier, an ElemPtr or
// MemberPtr for indexing and member access, the pointer operand itself for a
// dereference, and the plain expression otherwise. The analyzer rejects a
// store whose destination resolves to AddrLValueConst.
func (b *Builder) buildLValue(n *ast.Node) *Instr {
	switch n.Kind {
	case ast.KindIdent:
		return b.buildIdent(n)
	case ast.KindIndex:
		return b.buildIndex(n)
	case ast.KindMemberAccess:
		return b.buildMemberAccess(n)
	case ast.KindDeref:
		return b.buildExpr(n.Children[0])
	default:
		return b.buildExpr(n)
	}
}

// --- expressions ---------------------------------------------------------------

func (b *Builder) buildExpr(n *ast.Node) *Instr {
	switch n.Kind {
	case ast.KindIntLit, ast.KindFloatLit, ast.KindBoolLit, ast.KindStringLit, ast.KindNullLit:
		return b.buildConst(n)
	case ast.KindIdent:
		return b.buildLoadIdent(n)
	case ast.KindBinop:
		return b.buildBinop(n)
	case ast.KindUnop:
		return b.buildUnop(n)
	case ast.KindCall:
		return b.buildCall(n)
	case ast.KindIndex:
		ptr := b.buildIndex(n)
		load := b.emit(KindLoad, n)
		load.Data.Ref = ptr
		return load
	case ast.KindMemberAccess:
		ptr := b.buildMemberAccess(n)
		load := b.emit(KindLoad, n)
		load.Data.Ref = ptr
		return load
	case ast.KindAddrOf:
		target := b.buildLValue(n.Children[0])
		instr := b.emit(KindAddrOf, n)
		instr.Data.Ref = target
		return instr
	case ast.KindDeref:
		ptr := b.buildExpr(n.Children[0])
		load := b.emit(KindLoad, n)
		load.Data.Ref = ptr
		load.Data.IsDeref = true
		return load
	case ast.KindCast:
		return b.buildCast(n)
	case ast.KindCompound:
		return b.buildCompound(n)
	case ast.KindSizeof:
		expr := b.buildExpr(n.Children[0])
		instr := b.emit(KindSizeof, n)
		instr.Data.Expr = expr
		return instr
	case ast.KindAlignof:
		expr := b.buildExpr(n.Children[0])
		instr := b.emit(KindAlignof, n)
		instr.Data.Expr = expr
		return instr
	case ast.KindTypeInfo:
		expr := b.buildExpr(n.Children[0])
		instr := b.emit(KindTypeInfo, n)
		instr.Data.Expr = expr
		return instr
	case ast.KindToAny:
		expr := b.buildExpr(n.Children[0])
		instr := b.emit(KindToAny, n)
		instr.Data.Expr = expr
		return instr
	case ast.KindFnType:
		return b.buildTypeFn(n)
	case ast.KindStructType:
		return b.buildTypeStruct(n)
	case ast.KindEnumType:
		return b.buildTypeEnum(n)
	case ast.KindPtrType:
		elem := b.buildExpr(n.Children[0])
		instr := b.emit(KindTypePtr, n)
		instr.Data.TypeElemInstr = elem
		return instr
	case ast.KindArrayType:
		length := b.buildExpr(n.Children[0])
		elem := b.buildExpr(n.Children[1])
		instr := b.emit(KindTypeArray, n)
		instr.Data.TypeLenInstr = length
		instr.Data.TypeElemInstr = elem
		return instr
	case ast.KindSliceType:
		elem := b.buildExpr(n.Children[0])
		instr := b.emit(KindTypeSlice, n)
		instr.Data.TypeElemInstr = elem
		return instr
	case ast.KindVArgsType:
		elem := b.buildExpr(n.Children[0])
		instr := b.emit(KindTypeVArgs, n)
		instr.Data.TypeElemInstr = elem
		return instr
	default:
		b.Sink.Error(diag.CodeInvalidExpr, n.Loc, diag.CursorWord, "unsupported expression")
		return b.emit(KindConst, n)
	}
}

func (b *Builder) buildConst(n *ast.Node) *Instr {
	instr := b.emit(KindConst, n)
	instr.Value.IsComptime = true
	switch n.Kind {
	case ast.KindIntLit:
		instr.Value.Int = n.Data.(int64)
	case ast.KindFloatLit:
		instr.Value.Real = n.Data.(float64)
	case ast.KindBoolLit:
		if n.Data.(bool) {
			instr.Value.Int = 1
		}
	}
	return instr
}

// buildIdent emits an unresolved reference instruction for an identifier used as
// a value producer.
func (b *Builder) buildIdent(n *ast.Node) *Instr {
	name, _ := n.Data.(string)
	instr := b.emit(KindDeclRef, n)
	instr.Data.RefName = name
	instr.Data.RefScope = n.Scope
	return instr
}

// buildLoadIdent wraps buildIdent's reference instruction in a Load, since a bare
// identifier used as a value means "read the current contents of this binding".
func (b *Builder) buildLoadIdent(n *ast.Node) *Instr {
	ref := b.buildIdent(n)
	load := b.emit(KindLoad, n)
	load.Data.Ref = ref
	return load
}

func (b *Builder) buildBinop(n *ast.Node) *Instr {
	op, _ := n.Data.(ast.BinOp)
	if (op == ast.OpLogAnd || op == ast.OpLogOr) && b.cur.Fn != nil {
		return b.buildLogical(n, op)
	}
	lhs := b.buildExpr(n.Children[0])
	rhs := b.buildExpr(n.Children[1])
	instr := b.emit(KindBinop, n)
	instr.Data.BinOp = op
	instr.Data.Lhs = lhs
	instr.Data.Rhs = rhs
	return instr
}

// buildLogical lowers `lhs && rhs` / `lhs || rhs` into a conditional branch that
// skips rhs evaluation entirely when lhs already decides the result, producing a
// Phi on the continuation block. In the
// global block, where no branching is possible, logical operators stay plain
// Binops and fold at comptime instead.
func (b *Builder) buildLogical(n *ast.Node, op ast.BinOp) *Instr {
	lhs := b.buildExpr(n.Children[0])
	lhsBlk := b.cur

	fn := b.cur.Fn
	rhsBlk := fn.NewBlock("log.rhs", b.Module.nextID)
	contBlk := fn.NewBlock("log.cont", b.Module.nextID)

	br := b.emit(KindCondBr, n)
	br.Data.Cond = lhs
	if op == ast.OpLogAnd {
		br.Data.ThenBlk = rhsBlk
		br.Data.ElseBlk = contBlk
	} else {
		br.Data.ThenBlk = contBlk
		br.Data.ElseBlk = rhsBlk
	}

	b.cur = rhsBlk
	rhs := b.buildExpr(n.Children[1])
	rhsEndBlk := b.cur
	jmp := b.emit(KindBr, n)
	jmp.Data.TargetBlk = contBlk

	b.cur = contBlk
	phi := b.emit(KindPhi, n)
	phi.Data.PhiIncoming = []PhiIncoming{
		{Value: lhs, Block: lhsBlk},
		{Value: rhs, Block: rhsEndBlk},
	}
	return phi
}

func (b *Builder) buildUnop(n *ast.Node) *Instr {
	op, _ := n.Data.(ast.UnOp)
	operand := b.buildExpr(n.Children[0])
	instr := b.emit(KindUnop, n)
	instr.Data.UnOp = op
	instr.Data.Operand = operand
	return instr
}

func (b *Builder) buildCall(n *ast.Node) *Instr {
	calleeNode := n.Children[0]
	callee := b.buildExpr(calleeNode)
	var args []*Instr
	for _, argNode := range n.Children[1:] {
		argExpr := b.buildExpr(argNode)
		argInstr := b.emit(KindArg, argNode)
		argInstr.Data.Expr = argExpr
		args = append(args, argInstr)
	}
	instr := b.emit(KindCall, n)
	instr.Data.Callee = callee
	instr.Data.Args = args
	return instr
}

func (b *Builder) buildIndex(n *ast.Node) *Instr {
	// The aggregate operand is addressed, not loaded: ElemPtr needs the array's
	// storage address so element stores and loads share one l-value.
	arr := b.buildLValue(n.Children[0])
	idx := b.buildExpr(n.Children[1])
	instr := b.emit(KindElemPtr, n)
	instr.Data.ArrPtr = arr
	instr.Data.Index = idx
	return instr
}

func (b *Builder) buildMemberAccess(n *ast.Node) *Instr {
	target := n.Children[0]
	name, _ := n.Data.(string)
	targetInstr := b.buildLValue(target)
	instr := b.emit(KindMemberPtr, n)
	instr.Data.TargetPtr = targetInstr
	instr.Data.MemberIdent = name
	switch name {
	case "len":
		instr.Data.BuiltinMember = BuiltinMemberLen
	case "ptr":
		instr.Data.BuiltinMember = BuiltinMemberPtr
	}
	return instr
}

func (b *Builder) buildCast(n *ast.Node) *Instr {
	typeNode, exprNode := n.Children[0], n.Children[1]
	castType := b.buildExpr(typeNode)
	castExpr := b.buildExpr(exprNode)
	instr := b.emit(KindCast, n)
	instr.Data.CastType = castType
	instr.Data.CastExpr = castExpr
	return instr
}

func (b *Builder) buildCompound(n *ast.Node) *Instr {
	typeNode := n.Children[0]
	compoundType := b.buildExpr(typeNode)
	var values []*Instr
	for _, elemNode := range n.Children[1:] {
		values = append(values, b.buildExpr(elemNode))
	}
	instr := b.emit(KindCompound, n)
	instr.Data.CompoundType = compoundType
	if len(n.Children) == 1 {
		instr.Data.IsNaked = true
		instr.Data.ZeroInitialized = true
		return instr
	}
	instr.Data.CompoundValues = values
	return instr
}

func (b *Builder) buildTypeFn(n *ast.Node) *Instr {
	retNode := n.Children[0]
	ret := b.buildExpr(retNode)
	var argInstrs []*Instr
	var argNames []string
	for _, p := range n.Children[1:] {
		if p.Kind == ast.KindParam {
			name, _ := p.Data.(string)
			argNames = append(argNames, name)
			argInstrs = append(argInstrs, b.buildExpr(p.Children[0]))
			continue
		}
		argNames = append(argNames, "")
		argInstrs = append(argInstrs, b.buildExpr(p))
	}
	instr := b.emit(KindTypeFn, n)
	instr.Data.TypeRetInstr = ret
	instr.Data.TypeArgsInstr = argInstrs
	instr.Data.TypeArgNames = argNames
	return instr
}

func (b *Builder) buildTypeStruct(n *ast.Node) *Instr {
	var memberInstrs []*Instr
	var memberNames []string
	for _, m := range n.Children {
		if m.Kind != ast.KindMember {
			continue
		}
		name, _ := m.Data.(string)
		memberNames = append(memberNames, name)
		memberInstrs = append(memberInstrs, b.buildExpr(m.Children[0]))
	}
	instr := b.emit(KindTypeStruct, n)
	instr.Data.TypeScope = n.Scope
	instr.Data.TypeMembersInstr = memberInstrs
	instr.Data.TypeArgNames = memberNames
	return instr
}

func (b *Builder) buildTypeEnum(n *ast.Node) *Instr {
	var base *Instr
	if len(n.Children) > 0 && n.Children[0].Kind != ast.KindVariant {
		base = b.buildExpr(n.Children[0])
	}
	instr := b.emit(KindTypeEnum, n)
	instr.Data.TypeBaseInstr = base
	return instr
}

// emit allocates a new Instr of kind owned by the module, appends it to the
// current cursor block whatever its kind, and returns it.
// Every Create-method-style builder function must build its operand
// sub-expressions (via buildExpr/buildLValue, which themselves call emit) BEFORE
// calling emit for its own instruction: a block's instruction list is also the
// order the analyzer walks it in, so an instruction's operands must already
// appear earlier in the list than the instruction itself.
func (b *Builder) emit(kind Kind, n *ast.Node) *Instr {
	instr := b.alloc(kind, n)
	b.appendInstr(instr)
	return instr
}

// alloc allocates a new Instr without appending it to any block yet. Used by
// buildDeclVar/buildFnProto, which must register a scope entry pointing at the
// (still-unappended) instruction before building its operands, so a function
// may reference itself recursively, while still appending the instruction
// itself only once those operands exist — keeping operands-before-use order.
func (b *Builder) alloc(kind Kind, n *ast.Node) *Instr {
	return b.Module.NewInstr(kind, n)
}

// appendInstr appends a previously alloc'd instruction to the current cursor
// block.
func (b *Builder) appendInstr(instr *Instr) {
	if b.cur.NoEmit {
		instr.Unreachable = true
	}
	b.cur.append(instr)
}
