//go:build darwin || linux || freebsd

package hotlib

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"
)

// NativeOpener opens platform dynamic libraries through dlopen.
var NativeOpener Opener = OpenerFunc(openNative)

type dlopenHandle struct {
	ref uintptr
}

func openNative(path string) (Handle, error) {
	ref, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &dlopenHandle{ref: ref}, nil
}

func (h *dlopenHandle) Lookup(name string) (uintptr, error) {
	p, err := purego.Dlsym(h.ref, name)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return p, nil
}

func (h *dlopenHandle) Bind(name string, fptr any) error {
	if v := reflect.ValueOf(fptr); v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Func {
		return ErrBadBinding
	}
	p, err := h.Lookup(name)
	if err != nil {
		return err
	}
	purego.RegisterFunc(fptr, p)
	return nil
}

func (h *dlopenHandle) Close() error {
	return purego.Dlclose(h.ref)
}
