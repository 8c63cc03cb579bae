package mir

import (
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/mirtype"
)

// Linkage distinguishes where a Fn's body comes from
// is_extern/is_test/is_entry bitfield but expressed as a single enum.
type Linkage int

const (
	LinkageLocal Linkage = iota // defined with a body in this module
	LinkageExtern               // declared, resolved against a loaded dynamic library
)

// Fn is a declared function It owns its basic blocks
// through the Function arena and is the unit the analyzer pushes onto the analyze
// stack and the VM calls.
type Fn struct {
	ID   uint64
	Name string
	Type *mirtype.Type // KindFn

	Linkage Linkage
	LibName string // dynamic library to search, if Linkage == LinkageExtern

	IsEntry bool // the designated program entry point
	IsTest  bool // a declared test case

	Params  []*Var
	Blocks  []*Block
	Entry   *Block // Blocks[0], the function's entry block

	// FirstUnreachableLoc records the first statement following a terminator in
	// the body, so the analyzer emits a single unreachable-code warning per
	// function rather than one per trailing statement.
	FirstUnreachableLoc *ast.Loc

	// FFI descriptor, populated lazily by internal/vm/ffi when an extern Fn is
	// first called.
	FFISignature string
	FFIResolved  bool
	FFISym       uintptr // resolved extern entry pointer

	analyzed bool // guards re-analysis when a Fn is referenced from multiple call sites
}

// NewBlock creates and appends a new Block owned by fn.
func (fn *Fn) NewBlock(name string, seq func() uint64) *Block {
	b := &Block{ID: seq(), Fn: fn, Name: name}
	fn.Blocks = append(fn.Blocks, b)
	if fn.Entry == nil {
		fn.Entry = b
	}
	return b
}

// Analyzed reports and Mark sets whether the analyzer has already fully processed
// fn's body, so repeated DeclRefs to the same function don't re-walk it.
func (fn *Fn) Analyzed() bool  { return fn.analyzed }
func (fn *Fn) MarkAnalyzed()   { fn.analyzed = true }
