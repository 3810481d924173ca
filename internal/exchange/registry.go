package exchange

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownExchange = errors.New("unknown exchange")

type Credentials struct {
	APIKey string
	Secret string
}

// Factory builds a fresh gateway session for one venue.
type Factory func(creds Credentials) (Gateway, error)

// Registry maps exchange identifiers to gateway factories. The set of venues
// is closed at startup: gateway packages register themselves before the app
// is constructed, typically from an init function.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return errors.New("exchange id is required")
	}
	if factory == nil {
		return errors.New("exchange factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("exchange %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

func (r *Registry) Open(id string, creds Credentials) (Gateway, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	return factory(creds)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaultRegistry = NewRegistry()

// Default is the process-wide registry gateway packages register into.
func Default() *Registry {
	return defaultRegistry
}
