package hotlib

import (
	"errors"
	"sync"

	"github.com/ZenLiuCN/fn"
)

// Registry owns one Module per hot-reloadable library for applications that
// host several. It replaces process-wide singletons, construct one and pass
// it where needed.
type Registry struct {
	mu      sync.Mutex
	modules map[string]*Module
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds a module under name.
func (g *Registry) Register(name string, m *Module) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.modules[name]; ok {
		return ErrAlreadyRegistered
	}
	g.modules[name] = m
	return nil
}

// Load creates, registers and starts a Module in one step.
func (g *Registry) Load(name, libDir, libName string, opts ...Option) (*Module, error) {
	m, err := NewModule(libDir, libName, opts...)
	if err != nil {
		return nil, err
	}
	if err = g.Register(name, m); err != nil {
		_ = m.Close()
		return nil, err
	}
	m.Start()
	return m, nil
}

// Get fetches a registered module.
func (g *Registry) Get(name string) (m *Module, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok = g.modules[name]
	return
}

// Names lists the registered module names.
func (g *Registry) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn.MapKeys(g.modules)
}

// CloseAll closes every registered module and empties the registry.
func (g *Registry) CloseAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for name, m := range g.modules {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(g.modules, name)
	}
	return errors.Join(errs...)
}
