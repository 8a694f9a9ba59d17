package hotlib

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkujhd/goloader"
)

type (
	// GoObjOpener loads relocatable Go object or archive files instead of
	// platform dynamic libraries. Runtime symbols of the host are registered
	// once on first use and shared by every handle this opener creates.
	//
	// Note:
	//
	//	1. Only exported functions can link and use.
	//	2. A fetched symbol must be cast with Func inside the goroutine that
	//	   uses it, the function result is safe to reuse.
	GoObjOpener struct {
		// Pkg is the package path compiled into the object file, "main" when empty.
		Pkg string
		// Types registers concrete types shared between host and module.
		Types []any

		once sync.Once
		sym  map[string]uintptr
		err  error
	}
	goObjHandle struct {
		pkg    string
		linker *goloader.Linker
		module *goloader.CodeModule
	}
)

func (o *GoObjOpener) init() {
	o.once.Do(func() {
		o.sym = make(map[string]uintptr)
		if o.err = goloader.RegSymbol(o.sym); o.err != nil {
			return
		}
		if len(o.Types) > 0 {
			goloader.RegTypes(o.sym, o.Types...)
		}
	})
}

// Open reads and links one object file. The returned handle resolves the
// module's exported symbols by name, unqualified names default to the
// opener's package path.
func (o *GoObjOpener) Open(path string) (Handle, error) {
	o.init()
	if o.err != nil {
		return nil, o.err
	}
	pkg := o.Pkg
	if pkg == "" {
		pkg = "main"
	}
	linker, err := goloader.ReadObj(path, pkg)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	module, err := goloader.Load(linker, o.sym)
	if err != nil {
		return nil, fmt.Errorf("link object %s: %w", path, err)
	}
	return &goObjHandle{pkg: pkg, linker: linker, module: module}, nil
}

func (h *goObjHandle) Lookup(name string) (uintptr, error) {
	if h.module == nil {
		return 0, ErrNotLoaded
	}
	p, ok := h.module.Syms[qualify(h.pkg, name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return p, nil
}

func (h *goObjHandle) Bind(name string, fptr any) error {
	v := reflect.ValueOf(fptr)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Func {
		return ErrBadBinding
	}
	addr, err := h.Lookup(name)
	if err != nil {
		return err
	}
	code := &addr
	v.Elem().Set(reflect.NewAt(v.Elem().Type(), unsafe.Pointer(&code)).Elem())
	return nil
}

func (h *goObjHandle) Close() error {
	if h.module != nil {
		_ = os.Stdout.Sync()
		h.module.Unload()
		h.module = nil
		h.linker = nil
	}
	return nil
}

func qualify(pkg, name string) string {
	if strings.IndexByte(name, '.') < 0 {
		return pkg + "." + name
	}
	return name
}
