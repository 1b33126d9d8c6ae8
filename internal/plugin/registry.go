package plugin

import (
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/conveyor/internal/plan"
	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Factory constructs a plugin instance from its expanded properties.
type Factory func(props map[string]string) (any, error)

type registryKey struct {
	kind plan.Kind
	name string
}

// Registry maps (plugin kind, plugin name) to a factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[registryKey]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[registryKey]Factory)}
}

// Register adds a factory for the given kind and name.
func (r *Registry) Register(kind plan.Kind, name string, factory Factory) error {
	if factory == nil {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("factory is nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{kind: kind, name: name}
	if _, exists := r.factories[key]; exists {
		return conveyorerrors.NewPluginError(name, fmt.Errorf("plugin already registered for kind %s", kind))
	}

	r.factories[key] = factory
	return nil
}

// Lookup retrieves the factory for the given kind and name.
func (r *Registry) Lookup(kind plan.Kind, name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[registryKey{kind: kind, name: name}]
	if !ok {
		return nil, conveyorerrors.NewPluginError(name, fmt.Errorf("no plugin registered for kind %s", kind))
	}
	return factory, nil
}
