// Package config defines the compiler-core configuration surface: the
// Options bitset and the optimization-level enum. CLI parsing of these flags
// lives in cmd/mirc (spf13/cobra), not here: this package is the in-process
// configuration the core components read as plain data.
package config

// OptLevel is the optimization level: none | less | default | aggressive.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptLess
	OptDefault
	OptAggressive
)

// Options is the configuration bitset read by the MIR builder, analyzer and VM.
type Options struct {
	LoadFromFile  bool // Read source from file paths rather than stdin.
	PrintTokens   bool
	PrintAST      bool
	EmitLLVM      bool
	EmitMIR       bool
	NoBin         bool
	NoWarn        bool
	Verbose       bool
	NoAPI         bool
	ForceTestLLVM bool
	Run           bool // Execute the entry function after analysis.
	RunTests      bool // Execute all declared test cases after analysis.
	SyntaxOnly    bool
	DebugBuild    bool // Enables stack guard words.

	OptLevel OptLevel

	// Threads bounds the worker pool used by internal/driver to seed the analyze
	// stack in parallel; analysis and VM execution themselves always
	// run on a single thread. Threads <= 1 disables parallel seeding entirely.
	Threads int

	// StackSize is the byte size of the VM's main execution stack. Defaults to
	// 2 MiB.
	StackSize int

	// ScratchStackSize is the byte size of the VM's scratch stack used only for
	// materializing comptime composites as temporary stack objects.
	ScratchStackSize int

	Libs []string // Dynamic libraries searched for extern symbol resolution.
}

// DefaultMainStackSize and DefaultScratchStackSize are the VM stack defaults.
const (
	DefaultMainStackSize    = 2 << 20 // 2 MiB
	DefaultScratchStackSize = 64 << 10
)

// Default returns an Options populated with the default stack sizes.
func Default() Options {
	return Options{
		StackSize:        DefaultMainStackSize,
		ScratchStackSize: DefaultScratchStackSize,
		Threads:          1,
	}
}
