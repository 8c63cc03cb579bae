package mir

// Block is a basic block: a sequence of instructions terminated by exactly one
// control-flow instruction (Br, CondBr, Switch, Ret or Unreachable) once sealed.
type Block struct {
	ID   uint64
	Fn   *Fn // nil for the module's implicit global block
	Name string

	first, last *Instr
	term        bool // true once a terminator instruction has been appended

	// NoEmit gates LLVM emission: set for blocks the builder created only to
	// hold statically dead code so later lowering still resolves its names.
	NoEmit bool

	// Preds/Succs are populated by the analyzer's reachability walk over
	// terminator targets (missing-return detection); the builder itself only
	// needs sequential append + terminator tracking.
	Preds, Succs []*Block
}

// append adds instr as the new last instruction of b. Panics if b is already
// terminated; appending past a terminator is a builder bug, not user error.
func (b *Block) append(instr *Instr) {
	if b.term {
		panic("mir: append to already-terminated block " + b.Name)
	}
	instr.Block = b
	if b.last == nil {
		b.first, b.last = instr, instr
	} else {
		b.last.Next = instr
		instr.Prev = b.last
		b.last = instr
	}
	switch instr.Kind {
	case KindBr, KindCondBr, KindSwitch, KindRet, KindUnreachable:
		b.term = true
	}
}

// Terminated reports whether b already ends in a control-flow instruction.
func (b *Block) Terminated() bool { return b.term }

// Instrs returns the instructions of b in order. Callers must not mutate the
// returned slice's backing instructions' sibling links directly.
func (b *Block) Instrs() []*Instr {
	out := make([]*Instr, 0, 8)
	for i := b.first; i != nil; i = i.Next {
		out = append(out, i)
	}
	return out
}

// First/Last expose the block's instruction list endpoints for analyzer walks.
func (b *Block) First() *Instr { return b.first }
func (b *Block) Last() *Instr  { return b.last }
