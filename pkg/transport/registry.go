package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/killallgit/skillstream/pkg/config"
)

// Factory builds a transport from the loaded configuration
type Factory func(cfg *config.Config) (Transport, error)

// Registry maps runtime names to transport factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the web and extension transports
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(config.RuntimeWeb, func(cfg *config.Config) (Transport, error) {
		return NewWebTransport(cfg.Web), nil
	})
	r.Register(config.RuntimeExtension, func(cfg *config.Config) (Transport, error) {
		return NewExtensionTransport(cfg.Extension, nil), nil
	})
	return r
}

// Register adds or replaces the factory for name
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Names returns the registered runtime names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New selects and builds the transport for cfg.Runtime. Any runtime that
// mentions "extension" uses the extension transport; an empty runtime is web.
func (r *Registry) New(cfg *config.Config) (Transport, error) {
	name := ResolveRuntime(cfg.Runtime)

	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, cfg.Runtime)
	}
	return f(cfg)
}

// ResolveRuntime maps a configured runtime onto a registered name
func ResolveRuntime(runtime string) string {
	runtime = strings.ToLower(strings.TrimSpace(runtime))
	switch {
	case runtime == "":
		return config.RuntimeWeb
	case strings.Contains(runtime, config.RuntimeExtension):
		return config.RuntimeExtension
	default:
		return runtime
	}
}

var defaultRegistry = NewRegistry()

// New builds the transport for cfg from the default registry
func New(cfg *config.Config) (Transport, error) {
	return defaultRegistry.New(cfg)
}
