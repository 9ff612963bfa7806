package storekit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Registry resolves named stores from a declarative RegistryConfig.
//
// Configuration is validated up front; backends are built lazily on
// first use and cached, so two stores that reference the same backend
// config share one Backend instance (one client, one connection pool).
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	backends map[string]Backend
	closed   bool
}

// NewRegistry validates cfg and returns a registry. No backend is
// constructed yet; misconfigured backends fail on first GetStore.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		cfg:      cfg,
		backends: make(map[string]Backend),
	}, nil
}

// NewRegistryFromMap decodes a generic config map and builds a
// registry from it.
func NewRegistryFromMap(data map[string]any) (*Registry, error) {
	cfg, err := RegistryConfigFromMap(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(cfg)
}

// GetStore returns the store registered under name. The underlying
// backend is created on first use and shared with every other store
// that references the same backend config.
func (r *Registry) GetStore(name string) (*Store, error) {
	profile, ok := r.cfg.Stores[name]
	if !ok {
		return nil, fmt.Errorf(
			"unknown store %q. Available stores: %s",
			name, strings.Join(r.cfg.storeNames(), ", "))
	}
	backend, err := r.backend(profile.Backend)
	if err != nil {
		return nil, err
	}
	return NewStore(backend, profile.RootPath)
}

// StoreNames returns the configured store names, sorted.
func (r *Registry) StoreNames() []string {
	return r.cfg.storeNames()
}

func (r *Registry) backend(name string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}
	if b, ok := r.backends[name]; ok {
		return b, nil
	}

	bc := r.cfg.Backends[name]
	factory, ok := lookupBackendFactory(bc.Type)
	if !ok {
		return nil, fmt.Errorf(
			"unknown backend type %q. Registered types: %s",
			bc.Type, strings.Join(RegisteredBackends(), ", "))
	}
	b, err := factory(bc.Options)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid options for backend %q (type=%s): %w", name, bc.Type, err)
	}
	r.backends[name] = b
	return b, nil
}

// Close closes every backend the registry has built. The registry
// cannot be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing backend %q: %w", name, err))
		}
	}
	r.backends = nil
	return errors.Join(errs...)
}
