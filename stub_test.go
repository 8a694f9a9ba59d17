package hotlib

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"
)

// stubHandle fakes a loaded library: the file content is the "code", every
// symbol resolves and bound functions return the content. Lookups after
// Close are recorded so tests can assert no half-swapped handle escapes.
type stubHandle struct {
	mu      sync.Mutex
	payload string
	closed  bool
}

func (h *stubHandle) Lookup(name string) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fmt.Errorf("lookup %s on closed handle", name)
	}
	return uintptr(len(h.payload) + 1), nil
}

func (h *stubHandle) Bind(name string, fptr any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("bind %s on closed handle", name)
	}
	v := reflect.ValueOf(fptr)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Func {
		return ErrBadBinding
	}
	payload := h.payload
	v.Elem().Set(reflect.MakeFunc(v.Elem().Type(), func([]reflect.Value) []reflect.Value {
		return []reflect.Value{reflect.ValueOf(payload)}
	}))
	return nil
}

func (h *stubHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// stubOpener reads the copied file as the handle payload. Open can be forced
// to fail to exercise broken-binary cycles.
type stubOpener struct {
	mu      sync.Mutex
	opened  []*stubHandle
	failErr error
}

func (o *stubOpener) Open(path string) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failErr != nil {
		err := o.failErr
		o.failErr = nil
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h := &stubHandle{payload: string(b)}
	o.opened = append(o.opened, h)
	return h, nil
}

func (o *stubOpener) failNext(err error) {
	o.mu.Lock()
	o.failErr = err
	o.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeArtifact writes the platform-named watched library file.
func writeArtifact(dir, libName, content string) (string, error) {
	watched, _ := libraryPaths(dir, libName, 0, "")
	return watched, os.WriteFile(watched, []byte(content), 0o644)
}
