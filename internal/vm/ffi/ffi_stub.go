//go:build !(linux && cgo)

package ffi

import (
	"github.com/pkg/errors"

	"github.com/mirlang/mirc/internal/mir"
	"github.com/mirlang/mirc/internal/mirtype"
	"github.com/mirlang/mirc/internal/vm"
)

// Host mirrors the cgo build's interpreter re-entry surface.
type Host interface {
	Reenter(fn *mir.Fn, args [][]byte, types []*mirtype.Type) ([]byte, bool)
}

// Bridge is inert without cgo: extern resolution always fails with
// symbol-not-found, which the VM reports through the diagnostic sink.
type Bridge struct {
	Host Host
}

func NewBridge(libs []string) (*Bridge, error) {
	if len(libs) > 0 {
		return nil, errors.Errorf("library '%s' not found: dynamic loading requires cgo", libs[0])
	}
	return &Bridge{}, nil
}

func (b *Bridge) Close() {}

func (b *Bridge) Resolve(fn *mir.Fn) error {
	return errors.Errorf("external symbol '%s' not found", fn.Name)
}

func (b *Bridge) Call(fn *mir.Fn, args []vm.ExternArg) (vm.ExternRet, error) {
	return vm.ExternRet{}, errors.Errorf("external symbol '%s' not found", fn.Name)
}
