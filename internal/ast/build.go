package ast

// In-memory tree construction for callers that have no parser: the demo driver
// and the test suites build units out of these helpers and then run Bind to
// wire up lexical scopes, standing in for the out-of-scope parser's symbol
// binding pass.

// Unit wraps top-level declarations in a KindUnitBlock root.
func Unit(decls ...*Node) *Node {
	return &Node{Kind: KindUnitBlock, Children: decls}
}

// FnDecl declares a function with a body; typ must be a FnType node.
func FnDecl(name string, typ, body *Node) *Node {
	return &Node{Kind: KindFnLit, Data: FnFlags{}, Children: []*Node{Ident(name), typ, body}}
}

// ExternFn declares a bodyless extern function resolved against lib (empty
// means "search every loaded library").
func ExternFn(name string, typ *Node, lib string) *Node {
	return &Node{Kind: KindFnLit, Data: FnFlags{Extern: true, LibName: lib}, Children: []*Node{Ident(name), typ}}
}

// TestFn declares a test-case function.
func TestFn(name string, typ, body *Node) *Node {
	return &Node{Kind: KindFnLit, Data: FnFlags{Test: true}, Children: []*Node{Ident(name), typ, body}}
}

// FnType builds a function-type node: return type first, then parameters.
func FnType(ret *Node, params ...*Node) *Node {
	return &Node{Kind: KindFnType, Children: append([]*Node{ret}, params...)}
}

// Param names one function parameter.
func Param(name string, typ *Node) *Node {
	return &Node{Kind: KindParam, Data: name, Children: []*Node{typ}}
}

func Ident(name string) *Node { return &Node{Kind: KindIdent, Data: name} }

func IntLit(v int64) *Node      { return &Node{Kind: KindIntLit, Data: v} }
func FloatLit(v float64) *Node  { return &Node{Kind: KindFloatLit, Data: v} }
func BoolLit(v bool) *Node      { return &Node{Kind: KindBoolLit, Data: v} }
func StringLit(s string) *Node  { return &Node{Kind: KindStringLit, Data: s} }
func NullLit() *Node            { return &Node{Kind: KindNullLit} }

func Bin(op BinOp, lhs, rhs *Node) *Node {
	return &Node{Kind: KindBinop, Data: op, Children: []*Node{lhs, rhs}}
}

func Un(op UnOp, operand *Node) *Node {
	return &Node{Kind: KindUnop, Data: op, Children: []*Node{operand}}
}

func CallExpr(callee *Node, args ...*Node) *Node {
	return &Node{Kind: KindCall, Children: append([]*Node{callee}, args...)}
}

func Index(arr, idx *Node) *Node {
	return &Node{Kind: KindIndex, Children: []*Node{arr, idx}}
}

func Member(target *Node, name string) *Node {
	return &Node{Kind: KindMemberAccess, Data: name, Children: []*Node{target}}
}

func AddrOf(target *Node) *Node { return &Node{Kind: KindAddrOf, Children: []*Node{target}} }
func Deref(ptr *Node) *Node     { return &Node{Kind: KindDeref, Children: []*Node{ptr}} }

func Cast(typ, expr *Node) *Node {
	return &Node{Kind: KindCast, Children: []*Node{typ, expr}}
}

func Compound(typ *Node, values ...*Node) *Node {
	return &Node{Kind: KindCompound, Children: append([]*Node{typ}, values...)}
}

func PtrType(pointee *Node) *Node { return &Node{Kind: KindPtrType, Children: []*Node{pointee}} }

func ArrayType(length, elem *Node) *Node {
	return &Node{Kind: KindArrayType, Children: []*Node{length, elem}}
}

func SliceType(elem *Node) *Node { return &Node{Kind: KindSliceType, Children: []*Node{elem}} }

// StructType builds an anonymous struct type from MemberDecl nodes.
func StructType(members ...*Node) *Node {
	return &Node{Kind: KindStructType, Children: members}
}

// MemberDecl names one struct member.
func MemberDecl(name string, typ *Node) *Node {
	return &Node{Kind: KindMember, Data: name, Children: []*Node{typ}}
}

// VarDecl declares `name: typ = init`; typ or init (not both) may be nil.
func VarDecl(name string, typ, init *Node) *Node {
	return &Node{Kind: KindVarDecl, Children: []*Node{Ident(name), typ, init}}
}

func Assign(lhs, rhs *Node) *Node {
	return &Node{Kind: KindAssign, Children: []*Node{lhs, rhs}}
}

func CompoundAssign(op BinOp, lhs, rhs *Node) *Node {
	return &Node{Kind: KindCompoundAssign, Data: op, Children: []*Node{lhs, rhs}}
}

func Ret(expr *Node) *Node {
	n := &Node{Kind: KindReturn}
	if expr != nil {
		n.Children = []*Node{expr}
	}
	return n
}

func If(cond, then, els *Node) *Node {
	n := &Node{Kind: KindIf, Children: []*Node{cond, then}}
	if els != nil {
		n.Children = append(n.Children, els)
	}
	return n
}

// Loop builds `loop cond { body }`; a nil cond loops forever.
func Loop(cond, body *Node) *Node {
	if cond == nil {
		return &Node{Kind: KindLoop, Children: []*Node{body}}
	}
	return &Node{Kind: KindLoop, Children: []*Node{cond, body}}
}

func Break() *Node    { return &Node{Kind: KindBreak} }
func Continue() *Node { return &Node{Kind: KindContinue} }

func Block(stmts ...*Node) *Node { return &Node{Kind: KindBlock, Children: stmts} }

func ExprStmt(expr *Node) *Node {
	return &Node{Kind: KindExprStmt, Children: []*Node{expr}}
}

func Sizeof(typ *Node) *Node   { return &Node{Kind: KindSizeof, Children: []*Node{typ}} }
func Alignof(typ *Node) *Node  { return &Node{Kind: KindAlignof, Children: []*Node{typ}} }
func TypeInfo(typ *Node) *Node { return &Node{Kind: KindTypeInfo, Children: []*Node{typ}} }
func ToAny(expr *Node) *Node   { return &Node{Kind: KindToAny, Children: []*Node{expr}} }

// Bind assigns lexical scopes across the tree: the unit gets the universe
// scope, each block opens a child scope, and every node records the scope it
// is evaluated in. Declarations themselves are entered into scopes by the MIR
// builder: entries are created during binding, their instr pointer is filled
// in later.
func Bind(unit *Node) *Scope {
	global := NewScope(nil, ScopeGlobal)
	bind(unit, global)
	return global
}

func bind(n *Node, s *Scope) {
	if n == nil {
		return
	}
	n.Scope = s
	switch n.Kind {
	case KindBlock:
		inner := NewScope(s, ScopeBlock)
		n.Scope = inner
		for _, c := range n.Children {
			bind(c, inner)
		}
	case KindFnLit:
		for i, c := range n.Children {
			if i == 2 {
				bind(c, NewScope(s, ScopeFn))
				continue
			}
			bind(c, s)
		}
	case KindStructType:
		inner := NewScope(s, ScopeStruct)
		n.Scope = inner
		for _, c := range n.Children {
			bind(c, inner)
		}
	default:
		for _, c := range n.Children {
			bind(c, s)
		}
	}
}
