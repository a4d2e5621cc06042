package engine

import (
	"fmt"
	"plugin"

	"github.com/ethereum/go-ethereum/log"
)

// PluginSymbol is the function a plugin engine must export:
//
//	func NewEngine(logger log.Logger) (engine.Engine, error)
const PluginSymbol = "NewEngine"

func loadPlugin(path string) (Factory, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("engine plugin %s: %w", path, err)
	}
	switch fn := sym.(type) {
	case func(log.Logger) (Engine, error):
		return fn, nil
	case *Factory:
		return *fn, nil
	default:
		return nil, fmt.Errorf("engine plugin %s: %s has type %T, want func(log.Logger) (engine.Engine, error)", path, PluginSymbol, sym)
	}
}
