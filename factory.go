package storekit

import (
	"sort"
	"sync"
)

// BackendFactory is a function that creates a Backend from decoded
// options. Factories validate their options and fail with a
// descriptive error; they never reach the network (clients are lazy).
type BackendFactory func(options map[string]any) (Backend, error)

var (
	backendFactories = make(map[string]BackendFactory)
	factoryMutex     sync.RWMutex
)

// RegisterBackend registers a backend factory under a type name.
// Built-in adapters call this from init(); applications can register
// their own types the same way.
func RegisterBackend(typeName string, factory BackendFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	backendFactories[typeName] = factory
}

// RegisteredBackends returns the registered type names, sorted.
func RegisteredBackends() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackendFactory(typeName string) (BackendFactory, bool) {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	factory, ok := backendFactories[typeName]
	return factory, ok
}
