package hotlib

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// Module is one hot-reloadable library: a Reloader plus the goroutine that
// drives it and the Notifier announcing its lifecycle. Construct one per
// library and hand it to the call sites that need it, an application hosting
// several libraries can keep them in a Registry.
type Module struct {
	reloader *Reloader
	notifier *Notifier
	log      *slog.Logger

	version atomic.Uint64
	updated atomic.Bool

	changes *FileChangeSubscription

	bindMu   sync.Mutex
	bindings []binding

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type binding struct {
	name string
	fptr any
}

// NewModule creates a Module over the library named libName inside libDir.
// The update loop is not running yet, call Start after registering bindings
// and subscribers.
func NewModule(libDir, libName string, opts ...Option) (*Module, error) {
	r, err := NewReloader(libDir, libName, opts...)
	if err != nil {
		return nil, err
	}
	m := &Module{
		reloader: r,
		notifier: &Notifier{log: r.log},
		log:      r.log,
		changes:  r.SubscribeFileChanges(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	return m, nil
}

// Start launches the update loop, repeated calls are no-ops.
func (m *Module) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// run drives reload cycles one at a time: wait for a change signal, announce
// and wait for all block tokens, take exclusive access, swap, publish.
func (m *Module) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case <-m.changes.C:
		}
		// May block indefinitely, subscribers get unlimited time to
		// serialize state before the old code vanishes.
		m.notifier.SendAboutToReloadAndWait()
		if !m.lockForSwap() {
			return
		}
		ok, err := m.reloader.update()
		if ok && err == nil {
			m.rebind()
		}
		m.reloader.mu.Unlock()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			// Fatal to this cycle only, keep waiting for the next change.
			m.log.Error("reload failed", "err", err)
			continue
		}
		if ok {
			m.version.Add(1)
			m.updated.Store(true)
			m.notifier.SendReloaded()
		}
	}
}

// lockForSwap takes the exclusive lock without blocking symbol lookups
// forever, retrying on a fixed delay. False when the module was stopped
// while waiting.
func (m *Module) lockForSwap() bool {
	contended := false
	for !m.reloader.mu.TryLock() {
		if !contended {
			contended = true
			m.log.Info("waiting for exclusive access to swap")
		}
		select {
		case <-m.stop:
			return false
		case <-time.After(lockRetryDelay):
		}
	}
	return true
}

// Version counts successful reloads, it never decreases. A reader observing
// a new version is guaranteed to see the matching swapped handle.
func (m *Module) Version() uint64 {
	return m.version.Load()
}

// WasUpdated reports whether a reload happened since the last call, reading
// resets the flag.
func (m *Module) WasUpdated() bool {
	return m.updated.Swap(false)
}

// Subscribe connects an Observer to the module's reload lifecycle.
func (m *Module) Subscribe() *Observer {
	return m.notifier.Subscribe()
}

// SubscribeFileChanges connects a subscriber to the raw de-duplicated
// change signal, one unit per content change.
func (m *Module) SubscribeFileChanges() *FileChangeSubscription {
	return m.reloader.SubscribeFileChanges()
}

// GetSymbol resolves an exported symbol of the currently loaded version.
func (m *Module) GetSymbol(name string) (uintptr, error) {
	return m.reloader.GetSymbol(name)
}

// Bind registers a forwarding binding: fptr, a pointer to a function
// variable, is pointed at the named export now and re-pointed after every
// successful swap. This replaces per-symbol stub generation, populate the
// bindings at startup and call through the function variables.
//
// Binding before the first successful load is not an error, the binding
// takes effect once the library appears.
func (m *Module) Bind(name string, fptr any) error {
	if v := reflect.ValueOf(fptr); v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Func {
		return ErrBadBinding
	}
	m.bindMu.Lock()
	m.bindings = append(m.bindings, binding{name: name, fptr: fptr})
	m.bindMu.Unlock()
	if err := m.reloader.BindSymbol(name, fptr); err != nil && !errors.Is(err, ErrNotLoaded) {
		return err
	}
	return nil
}

// rebind refreshes registered bindings after a swap, called with the write
// lock held so readers never observe a stale binding with a new version.
func (m *Module) rebind() {
	m.bindMu.Lock()
	defer m.bindMu.Unlock()
	if m.reloader.handle == nil {
		return
	}
	for _, b := range m.bindings {
		if err := m.reloader.handle.Bind(b.name, b.fptr); err != nil {
			m.log.Error("rebinding symbol", "symbol", b.name, "err", err)
		}
	}
}

// Reloader exposes the underlying Reloader.
func (m *Module) Reloader() *Reloader {
	return m.reloader
}

// Close stops the update loop and the watcher, closes the loaded version and
// removes its private copy. A loop blocked announcing a reload exits once
// the outstanding block tokens are released.
func (m *Module) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.changes.Close()
	})
	return m.reloader.Close()
}
