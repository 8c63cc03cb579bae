package vm

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/config"
	"github.com/mirlang/mirc/internal/diag"
	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

// maxCallstackDepth bounds the call-stack excerpt printed on a runtime fault.
const maxCallstackDepth = 8

// ExternArg is one marshalled argument of an extern call, already translated
// from VM encoding to host representation by the interpreter.
type ExternArg struct {
	Type  *mirtype.Type
	Word  uint64
	Float float64
	Ptr   unsafe.Pointer
	// Fn is set instead of Ptr when the argument is a function value: the
	// bridge wraps it in a generated callback before handing it to foreign
	// code.
	Fn *mir.Fn
}

// ExternRet is the raw return of an extern call; the interpreter re-encodes it
// per the function's declared return type.
type ExternRet struct {
	Word  uint64
	Float float64
}

// ExternBridge is the capability interface over the dynamic-call FFI.
// internal/vm/ffi provides the dlopen-backed implementation.
type ExternBridge interface {
	// Resolve looks the function's linkage name up against the loaded
	// libraries, caching the entry pointer and signature on fn.
	Resolve(fn *mir.Fn) error
	// Call dispatches a resolved extern function.
	Call(fn *mir.Fn, args []ExternArg) (ExternRet, error)
}

// VM is the compile-time virtual machine: a single-active-fiber interpreter
// over analyzed MIR with a main execution stack and a scratch stack for
// comptime composite temporaries.
type VM struct {
	Module *mir.Module
	Sink   *diag.Sink
	Out    io.Writer
	Bridge ExternBridge // nil disables extern calls

	stack   *Stack
	scratch *Stack
	globals []byte
	rodata  []byte

	globalTop int
	rodataTop int

	strCache map[uint64]uint64 // Const instr id -> rodata address of its string payload
	rtti     map[uint64]uint64 // type id -> global address of its RTTI descriptor

	fnsByID map[uint64]*mir.Fn

	globalsDone bool
	result      []byte
}

// New creates a VM for the analyzed module m using opts' stack sizes
// (DebugBuild enables stack guard words).
func New(m *mir.Module, sink *diag.Sink, opts config.Options) *VM {
	mainSize := opts.StackSize
	if mainSize <= 0 {
		mainSize = config.DefaultMainStackSize
	}
	scratchSize := opts.ScratchStackSize
	if scratchSize <= 0 {
		scratchSize = config.DefaultScratchStackSize
	}
	vm := &VM{
		Module:   m,
		Sink:     sink,
		Out:      os.Stdout,
		stack:    NewStack(mainSize, segStack, opts.DebugBuild),
		scratch:  NewStack(scratchSize, segScratch, false),
		globals:  make([]byte, 1<<20),
		rodata:   make([]byte, 1<<20),
		strCache: make(map[uint64]uint64),
		rtti:     make(map[uint64]uint64),
		fnsByID:  make(map[uint64]*mir.Fn),
	}
	for _, fn := range m.Fns() {
		vm.fnsByID[fn.ID] = fn
	}
	return vm
}

// Stack exposes the main execution stack, mostly for inspecting Aborted.
func (vm *VM) Stack() *Stack { return vm.stack }

// --- entry points -------------------------------------------------------------

// RunMain clears the main stack, pushes a terminal frame and executes the
// program entry function, printing its integer return state.
// Returns false if no entry was declared or execution aborted.
func (vm *VM) RunMain() bool {
	entry := vm.Module.Entry
	if entry == nil {
		if fn, ok := vm.Module.GetFn("main"); ok {
			entry = fn
		}
	}
	if entry == nil {
		fmt.Fprintln(vm.Out, "no entry function")
		return false
	}
	ret, ok := vm.runFn(entry, nil, nil)
	if !ok {
		return false
	}
	state := int64(0)
	if len(ret) > 0 {
		var v mirtype.Value
		mir.ReadValue(&v, ret, entry.Type.FnRet)
		state = v.Int
	}
	fmt.Fprintf(vm.Out, "execution finished with state: %d\n", state)
	return true
}

// RunTests executes every collected test function in isolation, resetting the
// stack and aborted flag between runs, and prints a pass/fail line per test.
// Returns the number of failed tests.
func (vm *VM) RunTests() int {
	failed := 0
	for _, fn := range vm.Module.Tests {
		_, ok := vm.runFn(fn, nil, nil)
		if ok {
			fmt.Fprintf(vm.Out, "test '%s' passed\n", fn.Name)
		} else {
			fmt.Fprintf(vm.Out, "test '%s' FAILED\n", fn.Name)
			failed++
		}
	}
	return failed
}

// ExecuteTopLevelCall runs a single analyzed Call instruction on a clean stack
// and decodes its result.
func (vm *VM) ExecuteTopLevelCall(call *mir.Instr) (mirtype.Value, bool) {
	if call.Kind != mir.KindCall {
		panic("vm: ExecuteTopLevelCall requires a Call instruction")
	}
	fn := vm.calleeFn(call)
	if fn == nil {
		return mirtype.Value{}, false
	}
	// A top-level call has no surrounding frame, so its arguments must be
	// comptime values the analyzer already folded.
	var args [][]byte
	var types []*mirtype.Type
	for _, arg := range call.Data.Args {
		if !arg.Value.IsComptime {
			vm.fault(call, "argument of a top-level call is not a compile-time constant")
			return mirtype.Value{}, false
		}
		args = append(args, vm.fetch(arg))
		types = append(types, arg.Value.Type)
	}
	ret, ok := vm.runFn(fn, args, types)
	if !ok {
		return mirtype.Value{}, false
	}
	var v mirtype.Value
	if fn.Type != nil && len(ret) > 0 {
		mir.ReadValue(&v, ret, fn.Type.FnRet)
	}
	return v, true
}

// runFn resets execution state and interprets fn to completion.
func (vm *VM) runFn(fn *mir.Fn, args [][]byte, types []*mirtype.Type) ([]byte, bool) {
	if !vm.globalsDone {
		vm.initGlobals()
		vm.globalsDone = true
	}
	vm.stack.Reset()
	vm.scratch.Reset()
	vm.result = nil

	frame := vm.stack.PushFrame(nil, fn)
	if fn.Entry == nil {
		vm.fault(nil, "function '%s' has no body", fn.Name)
		return nil, false
	}
	for i, b := range args {
		t := types[i]
		if t == nil {
			t = vm.Module.Types.Void
		}
		addr := vm.stack.Push(b, t)
		if addr == 0 {
			vm.fault(nil, "stack overflow")
			return nil, false
		}
		frame.argAddrs = append(frame.argAddrs, addr)
	}
	vm.allocLocals(fn)
	vm.stack.PC = fn.Entry.First()
	vm.loop()
	if vm.stack.Aborted {
		return nil, false
	}
	return vm.result, true
}

// loop is the interpreter's single flat dispatch loop. Calls and returns
// manipulate the frame chain and the PC; the loop itself never recurses, so a
// fault unwinds by simply stopping the loop.
func (vm *VM) loop() {
	for vm.stack.PC != nil && !vm.stack.Aborted {
		instr := vm.stack.PC
		vm.stack.PC = instr.Next
		vm.step(instr)
	}
}

// Reenter runs fn to completion on the current stack while an extern call is
// in flight: the FFI bridge's generated callbacks re-enter the interpreter
// here when foreign code invokes a function pointer it was handed.
// Interpreter state around the nested run is saved and
// restored; an abort inside the callback propagates to the suspended outer
// loop through the shared aborted flag.
func (vm *VM) Reenter(fn *mir.Fn, args [][]byte, types []*mirtype.Type) ([]byte, bool) {
	savedPC := vm.stack.PC
	savedPrev := vm.stack.PrevBlock
	savedResult := vm.result

	frame := vm.stack.PushFrame(nil, fn)
	for i, b := range args {
		t := types[i]
		if t == nil {
			t = vm.Module.Types.Void
		}
		addr := vm.stack.Push(b, t)
		if addr == 0 {
			vm.fault(nil, "stack overflow")
			return nil, false
		}
		frame.argAddrs = append(frame.argAddrs, addr)
	}
	vm.allocLocals(fn)
	vm.stack.PrevBlock = nil
	vm.stack.PC = fn.Entry.First()
	vm.loop()

	res := vm.result
	ok := !vm.stack.Aborted
	vm.stack.PC = savedPC
	vm.stack.PrevBlock = savedPrev
	vm.result = savedResult
	return res, ok
}

// initGlobals lays the module's global variables out in the static segment and
// bakes their comptime initializers.
func (vm *VM) initGlobals() {
	for i := vm.Module.Global.First(); i != nil; i = i.Next {
		if i.Kind != mir.KindDeclVar || i.Data.Var == nil || !i.Data.Var.IsGlobal {
			continue
		}
		v := i.Data.Var
		size := 8
		if v.Type != nil && v.Type.StoreSize > 0 {
			size = int(v.Type.StoreSize)
		}
		vm.globalTop = alignUp(vm.globalTop, stackAlign)
		off := vm.globalTop
		vm.globalTop += size
		v.FrameOffset = int64(off)
		if init := i.Data.DeclInit; init != nil && init.Value.IsComptime {
			vm.CopyComptimeToStack(vm.globals[off:off+size], init.Value, v.Type)
		}
	}
}

// --- faults -------------------------------------------------------------------

// fault reports a runtime fault, prints the call stack excerpt and sets the
// aborted flag; the dispatch loop stops on the next iteration.
func (vm *VM) fault(at *mir.Instr, format string, args ...interface{}) {
	fmt.Fprintf(vm.Out, format+"\n", args...)
	depth := 0
	if at != nil && at.Node != nil {
		fmt.Fprintf(vm.Out, "  at %s\n", at.Node.Loc)
	}
	for f := vm.stack.frame; f != nil && depth < maxCallstackDepth; f = f.prev {
		if f.caller != nil && f.caller.Node != nil {
			fmt.Fprintf(vm.Out, "  called from %s\n", f.caller.Node.Loc)
		}
		depth++
	}
	vm.stack.Aborted = true
}

func (vm *VM) loc(i *mir.Instr) ast.Loc {
	if i.Node != nil {
		return i.Node.Loc
	}
	return ast.Loc{}
}
