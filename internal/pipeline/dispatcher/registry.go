package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrNilHandler    = errors.New("nil handler")
)

// Handler consumes one matched root transaction. Returned errors are logged
// and counted; they never stop the subscription.
type Handler func(ctx context.Context, tx *model.Transaction, filterName string) error

type binding struct {
	name    string
	handler Handler
}

// Registry binds handlers to filters. Bind is meant for startup; the registry
// is read-only once dispatching starts.
type Registry struct {
	filters  *model.FilterSet
	bindings map[string][]binding
}

func NewRegistry(filters *model.FilterSet) *Registry {
	return &Registry{
		filters:  filters,
		bindings: make(map[string][]binding),
	}
}

// Bind appends h to the handlers of filterName. Handlers of one filter run in
// bind order.
func (r *Registry) Bind(filterName, handlerName string, h Handler) error {
	if !r.filters.Has(filterName) {
		return fmt.Errorf("bind %s: %w: %s", handlerName, ErrUnknownFilter, filterName)
	}
	if h == nil {
		return fmt.Errorf("bind %s to %s: %w", handlerName, filterName, ErrNilHandler)
	}
	r.bindings[filterName] = append(r.bindings[filterName], binding{name: handlerName, handler: h})
	return nil
}

// Handlers returns the handler names bound to filterName in bind order.
func (r *Registry) Handlers(filterName string) []string {
	bs := r.bindings[filterName]
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.name
	}
	return names
}

func (r *Registry) bound(filterName string) []binding {
	return r.bindings[filterName]
}
