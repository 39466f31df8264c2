package backends

import (
	"fmt"
	"sort"
	"sync"
)

// BackendFactory creates a backend instance with optional configuration
type BackendFactory func(config any) (Backend, error)

var (
	registryMu         sync.RWMutex
	registeredBackends = make(map[string]BackendFactory)
)

// Register registers a backend factory function. Registering an existing
// name replaces the previous factory.
func Register(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredBackends[name] = factory
}

// Create creates a backend instance with optional configuration
func Create(name string, config any) (Backend, error) {
	registryMu.RLock()
	factory, ok := registeredBackends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, name)
	}
	return factory(config)
}

// Registered returns the sorted names of all registered backends
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registeredBackends))
	for name := range registeredBackends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
