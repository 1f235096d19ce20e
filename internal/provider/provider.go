package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Domenick1991/tripbooking/internal/domain"
)

var (
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrProviderNotAllowed = errors.New("provider not allowed for component type")
)

type Request struct {
	BookingID     string
	TripID        int64
	ComponentType domain.ComponentType
	OptionID      string
	PriceCents    int64
	Details       json.RawMessage

	// Customizations are the user's extra requests (seat preference,
	// late check-in, ...), passed to the provider as given.
	Customizations json.RawMessage
}

// Confirmation is what a provider returns on success. Attributes carries
// provider-assigned values (seat, room number, ...) that the executor
// merges into the component details.
type Confirmation struct {
	Reference  string
	Attributes map[string]string
}

// Adapter books a single component with one external provider.
type Adapter interface {
	Name() string
	Book(ctx context.Context, req Request) (*Confirmation, error)
}

// Registry resolves provider names to adapters. The component type to
// provider mapping is fixed when the registry is built.
type Registry struct {
	adapters map[string]Adapter
	allowed  map[domain.ComponentType]map[string]struct{}
}

func NewRegistry(allowed map[domain.ComponentType][]string, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		allowed:  make(map[domain.ComponentType]map[string]struct{}, len(allowed)),
	}
	for ct, names := range allowed {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		r.allowed[ct] = set
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Allowed(ct domain.ComponentType, name string) bool {
	_, ok := r.allowed[ct][name]
	return ok
}

// Providers returns the sorted provider names allowed for ct.
func (r *Registry) Providers(ct domain.ComponentType) []string {
	out := make([]string, 0, len(r.allowed[ct]))
	for n := range r.allowed[ct] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Resolve(ct domain.ComponentType, name string) (Adapter, error) {
	if !r.Allowed(ct, name) {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotAllowed, name, ct)
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}
