package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultName is the engine used when none is configured.
const DefaultName = "gotest"

// Factory creates a new, not yet booted, engine.
type Factory func(logger log.Logger) (Engine, error)

var ErrUnknownEngine = errors.New("unknown engine")

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an engine available by name. It panics on duplicates.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	factories[name] = factory
}

// Names lists the registered engines.
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

// Open creates an engine. A non-empty path takes precedence over name and loads
// the engine from a Go plugin.
func Open(name, path string, logger log.Logger) (Engine, error) {
	if path != "" {
		factory, err := loadPlugin(path)
		if err != nil {
			return nil, err
		}
		return factory(logger)
	}
	if name == "" {
		name = DefaultName
	}
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownEngine, name, Names())
	}
	return factory(logger)
}
