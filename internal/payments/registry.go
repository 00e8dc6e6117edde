package payments

import (
	"fmt"
	"sort"

	"github.com/bookloop/orderflow/pkg/enums"
)

// Registry resolves configured adapters by provider name.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[enums.PaymentProvider]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := p.Name()
		if !name.IsKnown() {
			return nil, fmt.Errorf("provider %q is not supported", name)
		}
		if _, exists := r.providers[name]; exists {
			return nil, fmt.Errorf("provider %q registered twice", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

// Get returns the adapter for name or an error wrapping ErrUnknownProvider.
func (r *Registry) Get(name enums.PaymentProvider) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider %q: %w", name, ErrUnknownProvider)
}

// Names lists the configured providers in a stable order.
func (r *Registry) Names() []enums.PaymentProvider {
	if r == nil {
		return nil
	}
	names := make([]enums.PaymentProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
