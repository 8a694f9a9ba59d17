package hotlib

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Reloader manages one dynamic library file, loads it through its Opener and
// provides access to its symbols. When the watched build output changes,
// Reloader can unload the old version and load the new one through Update.
//
// Reloader does not update by itself, something must drive Update after a
// change signal. That is normally a Module, which also announces the reload
// lifecycle to subscribers.
type Reloader struct {
	libDir      string
	libName     string
	template    string
	opener      Opener
	log         *slog.Logger
	loadCounter uint64

	// mu gives symbol lookups shared access to the handle while the brief
	// swap in reload holds it exclusively.
	mu            sync.RWMutex
	handle        Handle
	loadedLibFile string
	closed        bool

	watchedLibFile string

	pending     atomic.Bool
	fingerprint atomic.Uint64

	subMu     sync.Mutex
	watchSubs []*FileChangeSubscription

	stop     chan struct{}
	stopOnce sync.Once
}

// NewReloader creates a Reloader for the library named libName inside
// libDir. libName is the base name without platform prefix or extension,
// libDir may be relative and is then searched for in ancestor directories.
// When the build output already exists it is copied, hashed and loaded right
// away, otherwise the first load happens on its first appearance. The watch
// goroutine runs until Close.
func NewReloader(libDir, libName string, opts ...Option) (*Reloader, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	dir, err := ResolveDir(libDir)
	if err != nil {
		return nil, err
	}
	r := &Reloader{
		libDir:   dir,
		libName:  libName,
		template: cfg.template,
		opener:   cfg.opener,
		log:      cfg.log.With("lib", libName),
		stop:     make(chan struct{}),
	}
	r.log.Debug("found library dir", "dir", dir)
	r.watchedLibFile, r.loadedLibFile = libraryPaths(dir, libName, r.loadCounter, cfg.template)
	if exists(r.watchedLibFile) {
		r.log.Debug("copying library", "from", r.watchedLibFile, "to", r.loadedLibFile)
		if err = CopyFile(r.watchedLibFile, r.loadedLibFile, nil); err != nil {
			return nil, fmt.Errorf("copy %s to %s: %w", r.watchedLibFile, r.loadedLibFile, err)
		}
		r.fingerprint.Store(fingerprintFile(r.loadedLibFile))
		if r.handle, err = r.opener.Open(r.loadedLibFile); err != nil {
			_ = os.Remove(r.loadedLibFile)
			return nil, err
		}
	} else {
		r.log.Debug("library does not yet exist", "file", r.watchedLibFile)
	}
	if err = r.watch(cfg.debounce); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Update swaps to the new library version when a content change is pending.
// It is a no-op returning false when nothing is pending, returns true after
// a successful reload and propagates copy and load failures. A failure only
// spoils this cycle, the next change signal starts a fresh one.
func (r *Reloader) Update() (bool, error) {
	if !r.pending.Load() {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update()
}

// update runs one reload cycle, callers hold the write lock.
func (r *Reloader) update() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	if !r.pending.CompareAndSwap(true, false) {
		return false, nil
	}
	if err := r.reload(); err != nil {
		return false, err
	}
	return true, nil
}

// reload closes the old version, copies the watched build output to a fresh
// private file, fingerprints it and opens it. Callers hold the write lock.
//
// The old handle is closed before the new load is confirmed. When the copy
// or the load fails nothing stays loaded, lookups return ErrNotLoaded until
// a later cycle succeeds.
func (r *Reloader) reload() error {
	r.log.Info("reloading library", "file", r.watchedLibFile)
	if r.handle != nil {
		h := r.handle
		r.handle = nil
		if err := h.Close(); err != nil {
			return fmt.Errorf("close %s: %w", r.loadedLibFile, err)
		}
		if exists(r.loadedLibFile) {
			_ = os.Remove(r.loadedLibFile)
		}
	}
	if !exists(r.watchedLibFile) {
		r.log.Warn("trying to reload library but it does not exist", "file", r.watchedLibFile)
		return nil
	}
	r.loadCounter++
	_, loaded := libraryPaths(r.libDir, r.libName, r.loadCounter, r.template)
	r.log.Debug("copying library", "from", r.watchedLibFile, "to", loaded)
	if err := CopyFile(r.watchedLibFile, loaded, nil); err != nil {
		return fmt.Errorf("copy %s to %s: %w", r.watchedLibFile, loaded, err)
	}
	r.fingerprint.Store(fingerprintFile(loaded))
	h, err := r.opener.Open(loaded)
	if err != nil {
		return err
	}
	r.handle = h
	r.loadedLibFile = loaded
	return nil
}

// GetSymbol resolves an exported symbol of the currently loaded version by
// its exact name, no mangling. The caller asserts the call signature of the
// export. Fails with ErrNotLoaded before the first successful load and with
// ErrMissingSymbol when the export is absent.
func (r *Reloader) GetSymbol(name string) (uintptr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.handle == nil {
		return 0, ErrNotLoaded
	}
	return r.handle.Lookup(name)
}

// BindSymbol points fptr, a pointer to a function variable, at the named
// export of the currently loaded version. The binding goes stale on the next
// swap, Module re-binds registered bindings automatically.
func (r *Reloader) BindSymbol(name string, fptr any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.handle == nil {
		return ErrNotLoaded
	}
	return r.handle.Bind(name, fptr)
}

// WatchedPath is the canonical build output file being watched.
func (r *Reloader) WatchedPath() string {
	return r.watchedLibFile
}

// LoadedPath is the private copy currently backing the loaded version.
func (r *Reloader) LoadedPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedLibFile
}

// Close stops the watcher, closes the current handle and removes the private
// copy. Repeated calls are no-ops.
func (r *Reloader) Close() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stop)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = true
		if r.handle != nil {
			err = r.handle.Close()
			r.handle = nil
		}
		if exists(r.loadedLibFile) {
			_ = os.Remove(r.loadedLibFile)
		}
	})
	return err
}
