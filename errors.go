package hotlib

import "errors"

var (
	// ErrNotFound occurs when the library directory or artifact can not be located.
	ErrNotFound = errors.New("library path not found")
	// ErrNotLoaded occurs on symbol lookup before any successful load.
	ErrNotLoaded = errors.New("library not loaded")
	// ErrMissingSymbol occurs when can't find a symbol inside the loaded library.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrBadBinding occurs when a binding target is not a pointer to a function.
	ErrBadBinding = errors.New("binding target must be a pointer to a function")
	// ErrAlreadyRegistered occurs when registering a module under a taken name.
	ErrAlreadyRegistered = errors.New("module already registered")
	// ErrClosed occurs when using a Reloader or Module after Close.
	ErrClosed = errors.New("already closed")
)
