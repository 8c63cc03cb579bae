//go:build linux && cgo

package ffi

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef uint64_t w64;

// The call shims exploit the SysV x86-64 / AAPCS64 convention: integer and
// pointer arguments travel in the integer registers and floating-point
// arguments in the vector registers, independently of their positions in the
// callee's prototype. Calling through a prototype that names six integer
// slots followed by four double slots therefore lands every argument exactly
// where a callee with any interleaving of up to six integer and four float
// parameters expects it. Passing more arguments than the callee reads is
// harmless in both conventions.
static w64 mirc_call_i(void *fn,
                       w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5,
                       double d0, double d1, double d2, double d3) {
	w64 (*f)(w64, w64, w64, w64, w64, w64, double, double, double, double) =
		(w64 (*)(w64, w64, w64, w64, w64, w64, double, double, double, double))fn;
	return f(a0, a1, a2, a3, a4, a5, d0, d1, d2, d3);
}

static double mirc_call_d(void *fn,
                          w64 a0, w64 a1, w64 a2, w64 a3, w64 a4, w64 a5,
                          double d0, double d1, double d2, double d3) {
	double (*f)(w64, w64, w64, w64, w64, w64, double, double, double, double) =
		(double (*)(w64, w64, w64, w64, w64, w64, double, double, double, double))fn;
	return f(a0, a1, a2, a3, a4, a5, d0, d1, d2, d3);
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
	"github.com/mirlang/mirc/internal/vm"
)

const (
	maxIntArgs   = 6
	maxFloatArgs = 4
)

// Host is the interpreter surface a generated callback re-enters when foreign
// code invokes a function pointer it was handed; *vm.VM implements it.
type Host interface {
	Reenter(fn *mir.Fn, args [][]byte, types []*mirtype.Type) ([]byte, bool)
}

// Bridge implements vm.ExternBridge over a set of dlopen'd libraries.
type Bridge struct {
	handles []unsafe.Pointer
	names   []string

	// Host re-enters the interpreter for callbacks; set by the driver after
	// the VM is created.
	Host Host

	// mainTID pins callback entry to the compile thread.
	mainTID int
}

// NewBridge opens each named library plus the process's own image (so libc
// symbols like puts resolve without an explicit library list). A library that
// fails to open reports the library-not-found error.
func NewBridge(libs []string) (*Bridge, error) {
	b := &Bridge{mainTID: unix.Gettid()}
	self := C.dlopen(nil, C.RTLD_NOW|C.RTLD_GLOBAL)
	if self != nil {
		b.handles = append(b.handles, unsafe.Pointer(self))
		b.names = append(b.names, "<self>")
	}
	for _, lib := range libs {
		cname := C.CString(lib)
		h := C.dlopen(cname, C.RTLD_NOW)
		C.free(unsafe.Pointer(cname))
		if h == nil {
			return nil, errors.Errorf("library '%s' not found", lib)
		}
		b.handles = append(b.handles, unsafe.Pointer(h))
		b.names = append(b.names, lib)
	}
	return b, nil
}

// Close releases the library handles (skipping the process's own image).
func (b *Bridge) Close() {
	for i, h := range b.handles {
		if b.names[i] == "<self>" {
			continue
		}
		C.dlclose(h)
	}
	b.handles = nil
}

// Resolve looks fn's linkage name up in the loaded libraries and caches the
// entry pointer and signature string on the function record.
func (b *Bridge) Resolve(fn *mir.Fn) error {
	cname := C.CString(fn.Name)
	defer C.free(unsafe.Pointer(cname))
	for i, h := range b.handles {
		if fn.LibName != "" && b.names[i] != fn.LibName && b.names[i] != "<self>" {
			continue
		}
		if sym := C.dlsym(h, cname); sym != nil {
			fn.FFISym = uintptr(sym)
			fn.FFISignature = Signature(fn.Type)
			fn.FFIResolved = true
			return nil
		}
	}
	return errors.Errorf("external symbol '%s' not found", fn.Name)
}

// Call pushes the marshalled arguments into the dynamic-call shim per the
// cached signature and reads the return through the matching getter.
func (b *Bridge) Call(fn *mir.Fn, args []vm.ExternArg) (vm.ExternRet, error) {
	sig := fn.FFISignature
	sep := -1
	for i := 0; i < len(sig); i++ {
		if sig[i] == ')' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return vm.ExternRet{}, errors.Errorf("malformed signature %q for '%s'", sig, fn.Name)
	}
	retTag := byte('v')
	if sep+1 < len(sig) {
		retTag = sig[sep+1]
	}

	var ia [maxIntArgs]C.w64
	var fa [maxFloatArgs]C.double
	ni, nf := 0, 0
	for _, a := range args {
		if a.Type != nil && a.Type.Kind == mirtype.KindStruct {
			return vm.ExternRet{}, errors.Errorf("by-value struct arguments are not supported calling '%s'", fn.Name)
		}
		switch {
		case a.Type != nil && a.Type.Kind == mirtype.KindReal:
			if nf == maxFloatArgs {
				return vm.ExternRet{}, errors.Errorf("too many float arguments calling '%s'", fn.Name)
			}
			fa[nf] = C.double(a.Float)
			nf++
		default:
			if ni == maxIntArgs {
				return vm.ExternRet{}, errors.Errorf("too many arguments calling '%s'", fn.Name)
			}
			word := C.w64(a.Word)
			if a.Fn != nil {
				p, err := b.callbackPtr(a.Fn)
				if err != nil {
					return vm.ExternRet{}, err
				}
				word = C.w64(uintptr(p))
			} else if a.Ptr != nil {
				word = C.w64(uintptr(a.Ptr))
			}
			ia[ni] = word
			ni++
		}
	}

	entry := unsafe.Pointer(fn.FFISym)
	switch retTag {
	case 'f', 'd':
		r := C.mirc_call_d(entry, ia[0], ia[1], ia[2], ia[3], ia[4], ia[5], fa[0], fa[1], fa[2], fa[3])
		return vm.ExternRet{Float: float64(r)}, nil
	default:
		r := C.mirc_call_i(entry, ia[0], ia[1], ia[2], ia[3], ia[4], ia[5], fa[0], fa[1], fa[2], fa[3])
		return vm.ExternRet{Word: uint64(r)}, nil
	}
}
