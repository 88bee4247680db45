// Package providers holds the registry of cascade backends. Backend packages
// register a factory from init; cmd/gps blank-imports the ones it ships.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rhythmlogic/gps/internal/cascade"
	"github.com/rhythmlogic/gps/internal/config"
)

// Factory creates a backend from its provider configuration.
type Factory func(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) (cascade.Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available under name. Registering a name twice panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if factory == nil {
		panic("providers: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("providers: Register called twice for " + name)
	}
	factories[name] = factory
}

// New builds the backend registered under name.
func New(ctx context.Context, name string, cfg config.ProviderConfig, log *slog.Logger) (cascade.Backend, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported provider backend: %s", name)
	}

	backend, err := factory(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", name, err)
	}
	return backend, nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
