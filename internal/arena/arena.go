// Package arena provides bulk allocation for MIR instructions, types, variables,
// functions, members, variants and arguments. Every allocation returns a pointer
// whose lifetime is tied to the owning Arena: there is no fine-grained free, only
// a single bulk discard at module teardown, so cycles in the instruction graph
// are safe: nothing is reference-counted for reclamation.
package arena

// blockSize is the number of elements held by each backing slab. New slabs are
// appended as the arena grows; already-handed-out pointers stay valid because
// slabs are never reallocated or moved.
const blockSize = 256

// Arena allocates values of type T in fixed-size slabs, returning stable pointers.
// It is not safe for concurrent use: the analyzer and VM that consume Arenas run on
// a single compile thread.
type Arena[T any] struct {
	slabs [][]T
	len   int // number of elements allocated in the last slab
}

// New allocates and returns a pointer to a fresh zero-valued T. The pointer remains
// valid for the lifetime of the Arena.
func (a *Arena[T]) New() *T {
	if len(a.slabs) == 0 || a.len == len(a.slabs[len(a.slabs)-1]) {
		a.slabs = append(a.slabs, make([]T, blockSize))
		a.len = 0
	}
	slab := a.slabs[len(a.slabs)-1]
	p := &slab[a.len]
	a.len++
	return p
}

// Len returns the total number of values allocated from the Arena across all slabs.
func (a *Arena[T]) Len() int {
	if len(a.slabs) == 0 {
		return 0
	}
	return (len(a.slabs)-1)*blockSize + a.len
}

// Each calls fn for every value allocated from the Arena, in allocation order.
func (a *Arena[T]) Each(fn func(*T)) {
	for i1, slab := range a.slabs {
		n := len(slab)
		if i1 == len(a.slabs)-1 {
			n = a.len
		}
		for i2 := 0; i2 < n; i2++ {
			fn(&slab[i2])
		}
	}
}
