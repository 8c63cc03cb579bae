// Package analyzer implements the MIR analyzer: symbol resolution, type
// inference and checking, implicit-cast insertion and comptime constant
// folding, walking the instruction stream produced by internal/mir's Builder
// exactly once per instruction via a FIFO analyze queue plus a waiting table
// for forward references. Diagnostics accumulate; analysis never stops at the
// first error.
package analyzer

import (
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// Flatten is a suspended unit of analysis: an ordered slice of instructions
// plus a resume cursor. It mirrors a single top-level declaration's dependency
// chain: the builder already emits an instruction strictly after the operands
// it references, so analyzing a
// Flatten in order never requires looking ahead — until it hits a DeclRef whose
// target hasn't been analyzed yet (a genuine forward reference to a later
// top-level declaration), at which point the Flatten parks itself in the waiting
// table keyed by the target instruction's id and stops advancing its cursor.
type Flatten struct {
	instrs []*mir.Instr
	cursor int
}

// Analyzer walks a Module's instruction stream once, resolving every
// declaration and call site and filling in each Instr's mirtype.Value.
type Analyzer struct {
	Module *mir.Module
	Sink   *diag.Sink
	Types  *LLVMTypes

	queue   []*Flatten
	waiting map[uint64][]*Flatten // keyed by the blocking target Instr's id
}

// New creates an Analyzer for m, reporting diagnostics to sink. llvmTypes may be
// nil in unit tests that don't need LLVM size/alignment materialization.
func New(m *mir.Module, sink *diag.Sink, llvmTypes *LLVMTypes) *Analyzer {
	return &Analyzer{Module: m, Sink: sink, Types: llvmTypes, waiting: make(map[uint64][]*Flatten)}
}

// Run analyzes every instruction reachable from the module's global block and
// every declared function's body, in declaration order, resolving forward
// references as earlier declarations complete. It returns once the analyze
// stack and waiting table have both drained (possibly reporting unknown-symbol
// diagnostics for any Flatten that never got unblocked).
func (a *Analyzer) Run() {
	for _, instrs := range flattens(a.Module) {
		a.queue = append(a.queue, &Flatten{instrs: instrs})
	}

	for len(a.queue) > 0 {
		f := a.queue[0]
		a.queue = a.queue[1:]
		a.drive(f)
	}

	// Anything still parked in the waiting table never got unblocked: the
	// declaration it waited on never finished analysis (undeclared names are
	// reported by analyzeDeclRef without parking). Each blocked DeclRef is
	// reported as an unknown symbol.
	// Poisoning a blocked reference can unpark flattens that immediately block
	// on the next unresolved name, so the sweep repeats until the table drains;
	// each round poisons at least one instruction, so it terminates.
	for len(a.waiting) > 0 {
		parked := a.waiting
		a.waiting = make(map[uint64][]*Flatten)
		for _, flats := range parked {
			for _, f := range flats {
				if f.cursor < len(f.instrs) {
					instr := f.instrs[f.cursor]
					a.reportUnresolved(instr)
					instr.Analyzed = true // poison so dependents don't re-block forever
					f.cursor++
					a.queue = append(a.queue, f)
				}
			}
		}
		for len(a.queue) > 0 {
			f := a.queue[0]
			a.queue = a.queue[1:]
			a.drive(f)
		}
	}
}

// drive advances f's cursor until it either completes or blocks on an
// unanalyzed target, in which case f is parked in the waiting table.
func (a *Analyzer) drive(f *Flatten) {
	for f.cursor < len(f.instrs) {
		instr := f.instrs[f.cursor]
		if instr.Analyzed {
			f.cursor++
			continue
		}
		target := a.analyzeOne(instr)
		if target != nil && !target.Analyzed {
			a.waiting[target.ID] = append(a.waiting[target.ID], f)
			return
		}
		for _, op := range mir.Operands(instr) {
			op.RefCount++
		}
		instr.Analyzed = true
		f.cursor++
		a.provide(instr)
	}
}

// provide wakes every Flatten parked waiting on instr now that it has finished
// analysis.
func (a *Analyzer) provide(instr *mir.Instr) {
	waiters, ok := a.waiting[instr.ID]
	if !ok {
		return
	}
	delete(a.waiting, instr.ID)
	a.queue = append(a.queue, waiters...)
}

func (a *Analyzer) reportUnresolved(instr *mir.Instr) {
	if instr.Kind != mir.KindDeclRef {
		return
	}
	loc := ast.Loc{}
	if instr.Node != nil {
		loc = instr.Node.Loc
	}
	a.Sink.Error(diag.CodeUnknownSymbol, loc, diag.CursorWord, "unknown symbol '%s'", instr.Data.RefName)
	instr.Value = mirtype.Value{Type: a.Module.Types.Void, Addr: mirtype.AddrRValue}
}

// flattens segments the program into one Flatten per top-level declaration: a
// run of operand instructions in the global block up to and including its
// anchoring DeclVar/FnProto, with a FnProto's function body spliced in
// immediately after the FnProto itself. One Flatten per declaration (rather
// than one for the whole program) is what makes suspend/resume work: a
// declaration blocked on a forward reference parks without stalling the
// declarations that come after it — which are exactly the ones that will
// eventually provide the missing symbol.
func flattens(m *mir.Module) [][]*mir.Instr {
	var out [][]*mir.Instr
	var cur []*mir.Instr
	for i := m.Global.First(); i != nil; i = i.Next {
		cur = append(cur, i)
		switch i.Kind {
		case mir.KindFnProto:
			if i.Data.Fn != nil {
				for _, blk := range i.Data.Fn.Blocks {
					for bi := blk.First(); bi != nil; bi = bi.Next {
						cur = append(cur, bi)
					}
				}
			}
			out = append(out, cur)
			cur = nil
		case mir.KindDeclVar:
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
