//go:build linux && cgo

package ffi

/*
#include <stdint.h>
typedef uint64_t w64;

extern w64 mircGoTrampoline(int slot, w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5);

// One static trampoline per callback slot: foreign code receives one of these
// addresses in place of the interpreter function it was handed, and every
// invocation funnels back into mircGoTrampoline with its slot index. A fixed
// slot table is all the dynamic-callback machinery the comptime bridge needs;
// slots are reused per function, not per call.
static w64 mirc_tramp_0(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(0, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_1(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(1, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_2(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(2, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_3(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(3, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_4(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(4, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_5(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(5, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_6(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(6, a0, a1, a2, a3, a4, a5); }
static w64 mirc_tramp_7(w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5) { return mircGoTrampoline(7, a0, a1, a2, a3, a4, a5); }

static void *mirc_tramp_addr(int slot) {
	switch (slot) {
	case 0: return (void *)mirc_tramp_0;
	case 1: return (void *)mirc_tramp_1;
	case 2: return (void *)mirc_tramp_2;
	case 3: return (void *)mirc_tramp_3;
	case 4: return (void *)mirc_tramp_4;
	case 5: return (void *)mirc_tramp_5;
	case 6: return (void *)mirc_tramp_6;
	case 7: return (void *)mirc_tramp_7;
	}
	return 0;
}
*/
import "C"

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
)

const maxCallbackSlots = 8

type callbackSlot struct {
	bridge *Bridge
	fn     *mir.Fn
}

var (
	cbMu    sync.Mutex
	cbSlots [maxCallbackSlots]*callbackSlot
)

// callbackPtr returns the C-callable trampoline address wrapping fn,
// allocating (or reusing) a slot in the fixed trampoline table.
func (b *Bridge) callbackPtr(fn *mir.Fn) (unsafe.Pointer, error) {
	cbMu.Lock()
	defer cbMu.Unlock()
	free := -1
	for i, s := range cbSlots {
		if s != nil && s.fn == fn {
			return C.mirc_tramp_addr(C.int(i)), nil
		}
		if s == nil && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return nil, errors.Errorf("no free callback slot for '%s'", fn.Name)
	}
	cbSlots[free] = &callbackSlot{bridge: b, fn: fn}
	return C.mirc_tramp_addr(C.int(free)), nil
}

//export mircGoTrampoline
func mircGoTrampoline(slot C.int, a0, a1, a2, a3, a4, a5 C.w64) C.w64 {
	cbMu.Lock()
	s := cbSlots[int(slot)]
	cbMu.Unlock()
	if s == nil || s.bridge.Host == nil {
		panic("ffi: callback invoked with no registered interpreter")
	}
	// Foreign libraries may run their own threads; re-entering the interpreter
	// anywhere but the compile thread would corrupt the VM stacks.
	if unix.Gettid() != s.bridge.mainTID {
		panic("ffi: callback invoked off the compile thread")
	}

	words := []uint64{uint64(a0), uint64(a1), uint64(a2), uint64(a3), uint64(a4), uint64(a5)}
	fnType := s.fn.Type
	args := make([][]byte, 0, len(fnType.FnArgs))
	types := make([]*mirtype.Type, 0, len(fnType.FnArgs))
	for i, arg := range fnType.FnArgs {
		if i >= len(words) {
			break
		}
		size := int(arg.Type.StoreSize)
		if size == 0 {
			size = 8
		}
		buf := make([]byte, size)
		switch size {
		case 1:
			buf[0] = byte(words[i])
		case 2:
			binary.LittleEndian.PutUint16(buf, uint16(words[i]))
		case 4:
			binary.LittleEndian.PutUint32(buf, uint32(words[i]))
		default:
			binary.LittleEndian.PutUint64(buf, words[i])
		}
		args = append(args, buf)
		types = append(types, arg.Type)
	}

	res, ok := s.bridge.Host.Reenter(s.fn, args, types)
	if !ok || len(res) == 0 {
		return 0
	}
	switch len(res) {
	case 1:
		return C.w64(res[0])
	case 2:
		return C.w64(binary.LittleEndian.Uint16(res))
	case 4:
		return C.w64(binary.LittleEndian.Uint32(res))
	default:
		return C.w64(binary.LittleEndian.Uint64(res))
	}
}
