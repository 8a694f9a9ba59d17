//go:build windows

package hotlib

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

// NativeOpener opens platform dynamic libraries through LoadLibrary.
var NativeOpener Opener = OpenerFunc(openNative)

type dllHandle struct {
	ref windows.Handle
}

func openNative(path string) (Handle, error) {
	ref, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &dllHandle{ref: ref}, nil
}

func (h *dllHandle) Lookup(name string) (uintptr, error) {
	p, err := windows.GetProcAddress(h.ref, name)
	if err != nil || p == 0 {
		return 0, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return p, nil
}

func (h *dllHandle) Bind(name string, fptr any) error {
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

func (h *dllHandle) Close() error {
	return windows.FreeLibrary(h.ref)
}
