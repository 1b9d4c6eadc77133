package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/clinscribe/clinscribe/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSTT] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory constructs an STT backend from its configuration block.
type STTFactory func(STTConfig) (stt.Provider, error)

// Registry maps STT provider names to their constructor functions, letting
// the application wire backends from configuration alone. Safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]STTFactory
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{stt: make(map[string]STTFactory)}
}

// RegisterSTT registers (or replaces) the factory for a provider name.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateSTT builds the backend selected by cfg.Provider.
func (r *Registry) CreateSTT(cfg STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("config: create stt provider %q: %w", cfg.Provider, ErrProviderNotRegistered)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create stt provider %q: %w", cfg.Provider, err)
	}
	return p, nil
}

// STTNames returns the registered provider names, sorted.
func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stt))
	for name := range r.stt {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
