package mir

import (
	"sync"

	"github.com/mirlang/mirc/internal/arena"
	"github.com/mirlang/mirc/internal/ast"
	"github.com/mirlang/mirc/internal/mirtype"
)

// Module is the top-level MIR unit produced by the Builder and consumed by the
// analyzer and VM: the global block's instructions, every declared function and
// global variable, the RTTI table and test-case list, and the designated entry
// point.
type Module struct {
	Name string

	Types *mirtype.Arena

	Global *Block // the implicit block holding top-level DeclVar/FnProto/Type* instructions

	fns     map[string]*Fn
	globals map[string]*Var

	// RTTI maps a Type's stable id to the TypeInfo instruction materializing its
	// runtime descriptor, populated on demand.
	rtti map[uint64]*Instr

	Entry *Fn   // the program's designated entry point, if any
	Tests []*Fn // every Fn with IsTest set, in declaration order

	instrArena arena.Arena[Instr]
	fnArena    arena.Arena[Fn]
	varArena   arena.Arena[Var]

	mu  sync.Mutex
	seq uint64

	// regMu guards the name registries and test list during parallel seeding;
	// analysis and execution are single-threaded and never
	// contend here.
	regMu sync.Mutex
}

// NewModule creates an empty Module named name, with its implicit global block
// already created.
func NewModule(name string) *Module {
	m := &Module{
		Name:    name,
		Types:   mirtype.NewArena(),
		fns:     make(map[string]*Fn, 32),
		globals: make(map[string]*Var, 16),
		rtti:    make(map[uint64]*Instr, 16),
	}
	m.Global = &Block{ID: m.nextID(), Name: "@global"}
	return m
}

// nextID returns the next globally unique id for an Instr, Block, Fn or Var.
// Mutex-guarded: the parallel front-end worker pool may seed multiple
// top-level declarations from different goroutines before analysis begins.
func (m *Module) nextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// NewInstr allocates a new Instr of the given kind from the module's arena and
// assigns it a unique id. The caller is responsible for appending it to a Block.
func (m *Module) NewInstr(kind Kind, node *ast.Node) *Instr {
	id := m.nextID()
	m.regMu.Lock()
	i := m.instrArena.New()
	m.regMu.Unlock()
	i.ID = id
	i.Kind = kind
	i.Node = node
	return i
}

// NewFn allocates, registers and returns a new Fn named name with the given type.
// Returns the existing Fn and false if name is already declared (the builder
// reports CodeDuplicateSymbol on that case).
func (m *Module) NewFn(name string, typ *mirtype.Type) (*Fn, bool) {
	id := m.nextID()
	m.regMu.Lock()
	defer m.regMu.Unlock()
	if existing, ok := m.fns[name]; ok {
		return existing, false
	}
	fn := m.fnArena.New()
	fn.ID = id
	fn.Name = name
	fn.Type = typ
	m.fns[name] = fn
	return fn, true
}

// NewVar allocates a new Var. Global variables are also registered by name;
// locals and temporaries are left unregistered (owned solely by their DeclVar
// Instr / the scope entry that created them).
func (m *Module) NewVar(name string, typ *mirtype.Type, global bool) *Var {
	id := m.nextID()
	m.regMu.Lock()
	defer m.regMu.Unlock()
	v := m.varArena.New()
	v.ID = id
	v.Name = name
	v.Type = typ
	v.IsGlobal = global
	if typ != nil {
		v.Alignment = typ.Alignment
	}
	if global {
		m.globals[name] = v
	}
	return v
}

// NewUnitBlock allocates a detached block with no owner function, used by the
// parallel front-end to lower one unit's top-level declarations off the main
// goroutine before splicing them into the global block.
func (m *Module) NewUnitBlock(name string) *Block {
	return &Block{ID: m.nextID(), Name: name}
}

// SpliceGlobal appends every instruction of a detached unit block to the end
// of the module's global block, reparenting them. Must be called from a single
// goroutine once the unit's builder has finished.
func (m *Module) SpliceGlobal(b *Block) {
	if b.first == nil {
		return
	}
	for i := b.first; i != nil; i = i.Next {
		i.Block = m.Global
	}
	if m.Global.last == nil {
		m.Global.first, m.Global.last = b.first, b.last
	} else {
		m.Global.last.Next = b.first
		b.first.Prev = m.Global.last
		m.Global.last = b.last
	}
	b.first, b.last = nil, nil
}

// NewBlock allocates a new Block owned by fn (or the global block if fn is nil).
func (m *Module) NewBlock(fn *Fn, name string) *Block {
	if fn == nil {
		panic("mir: use Module.Global for the implicit global block, not NewBlock(nil,...)")
	}
	return fn.NewBlock(name, m.nextID)
}

// Fns returns every declared function in the module, in an unspecified order.
func (m *Module) Fns() map[string]*Fn { return m.fns }

// Globals returns every declared global variable in the module, in an
// unspecified order.
func (m *Module) Globals() map[string]*Var { return m.globals }

// GetFn looks up a declared function by name.
func (m *Module) GetFn(name string) (*Fn, bool) {
	fn, ok := m.fns[name]
	return fn, ok
}

// GetGlobal looks up a declared global variable by name.
func (m *Module) GetGlobal(name string) (*Var, bool) {
	v, ok := m.globals[name]
	return v, ok
}

// RTTI returns the cached TypeInfo instruction for t's identity, and whether one
// has already been materialized.
func (m *Module) RTTI(t *mirtype.Type) (*Instr, bool) {
	i, ok := m.rtti[t.ID()]
	return i, ok
}

// SetRTTI caches instr as t's materialized TypeInfo instruction.
func (m *Module) SetRTTI(t *mirtype.Type, instr *Instr) {
	m.rtti[t.ID()] = instr
}

// MarkTest registers fn as a declared test case, appended in discovery order.
func (m *Module) MarkTest(fn *Fn) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	fn.IsTest = true
	m.Tests = append(m.Tests, fn)
}

// SetEntry records fn as the program's designated entry point.
func (m *Module) SetEntry(fn *Fn) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	fn.IsEntry = true
	m.Entry = fn
}
