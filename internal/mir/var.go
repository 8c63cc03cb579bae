package mir

import "github.com/mirlang/mirc/internal/mirtype"

// Var is a declared variable (local, global or implicit compiler-generated
// temporary) The owning DeclVar Instr links back via
// Instr.Data.Var.
type Var struct {
	ID       uint64
	Name     string
	Type     *mirtype.Type
	IsGlobal bool
	IsArg    bool   // true for a function parameter's shadow local
	Alignment int32 // usually Type.Alignment; overridden for over-aligned temporaries

	// Linkage/initializer, meaningful only for IsGlobal vars.
	Initializer *Instr

	// FrameOffset is filled in by the VM's frame layout pass; it is
	// meaningless until then.
	FrameOffset int64
}
