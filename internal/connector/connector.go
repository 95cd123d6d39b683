// Package connector defines the contract between exchange feeds and
// the dispatch loop, plus the registry main uses to build them.
package connector

import (
	"context"
	"fmt"
	"sort"

	"cryptosentry/config"
	"cryptosentry/internal/metrics"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Sink receives every normalized event a connector produces. It must be
// safe to call from the connector's goroutines.
type Sink func(models.Event)

// Connector is one exchange feed. Start is non-blocking; the connector
// owns its goroutines until Stop or context cancellation.
type Connector interface {
	Start(ctx context.Context) error
	Stop()
}

// Factory builds a connector for one configured exchange.
type Factory func(cfg config.ExchangeConfig, sink Sink, reg *metrics.Registry, log *logger.Log) Connector

var factories = map[string]Factory{}

// Register installs a factory under an exchange name. Called from
// connector package init functions.
func Register(name string, f Factory) {
	factories[name] = f
}

// Build resolves the factory for a configured exchange name.
func Build(name string, cfg config.ExchangeConfig, sink Sink, reg *metrics.Registry, log *logger.Log) (Connector, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q (supported: %v)", name, Supported())
	}
	return f(cfg, sink, reg, log), nil
}

// Supported lists registered exchange names, sorted for stable errors.
func Supported() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
