package hotlib

import "unsafe"

type (
	// Handle owns one opened native module, at most one per Reloader is open
	// at a time. It can not be implemented safely, every backend wraps an
	// unsafe loading primitive.
	Handle interface {
		// Lookup resolves an exported symbol by its exact name, no mangling.
		// The caller asserts the call signature of the export, a mismatch is
		// undefined behavior. Fails with ErrMissingSymbol.
		Lookup(name string) (uintptr, error)
		// Bind points fptr, a pointer to a function variable, at the export
		// named name. The function type of *fptr must match the export.
		Bind(name string, fptr any) error
		// Close releases all OS resources of the module. The backing file
		// may only be removed after Close returns.
		Close() error
	}
	// Opener creates a Handle from a library file on disk.
	Opener interface {
		Open(path string) (Handle, error)
	}
	// OpenerFunc adapts a plain function to an Opener.
	OpenerFunc func(path string) (Handle, error)
)

func (f OpenerFunc) Open(path string) (Handle, error) { return f(path) }

// Func reinterprets a code address fetched by [Handle.Lookup] of the Go
// object backend as a Go function value. The caller asserts T matches the
// export, nothing here can verify it.
func Func[T any](addr uintptr) T {
	p := &addr
	return *(*T)(unsafe.Pointer(&p))
}
