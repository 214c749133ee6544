package model

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateFilter = errors.New("duplicate filter name")
	ErrInvalidFilter   = errors.New("invalid filter")
)

// Filter is a predicate over a transaction. Every field that is set must hold
// for a match; a filter with no fields set matches every transaction.
// An empty or absent id list places no restriction on that id.
type Filter struct {
	Type          TxType   `yaml:"type,omitempty" json:"type,omitempty"`
	ApplicationID []uint64 `yaml:"app_id,omitempty" json:"app_id,omitempty"`
	AssetID       []uint64 `yaml:"asset_id,omitempty" json:"asset_id,omitempty"`
	MinAmount     *uint64  `yaml:"min_amount,omitempty" json:"min_amount,omitempty"`
	NotePrefix    *string  `yaml:"note_prefix,omitempty" json:"note_prefix,omitempty"`
}

// IsCatchAll reports whether the filter has no predicates.
func (f Filter) IsCatchAll() bool {
	return f.Type == "" &&
		len(f.ApplicationID) == 0 &&
		len(f.AssetID) == 0 &&
		f.MinAmount == nil &&
		f.NotePrefix == nil
}

func (f Filter) Validate() error {
	if f.Type != "" && !f.Type.Known() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidFilter, f.Type)
	}
	if f.MinAmount != nil && f.Type != "" && f.Type != TxTypePayment && f.Type != TxTypeAssetTransfer {
		return fmt.Errorf("%w: min_amount requires type pay or axfer, got %q", ErrInvalidFilter, f.Type)
	}
	if len(f.ApplicationID) > 0 && f.Type != "" && f.Type != TxTypeApplicationCall {
		return fmt.Errorf("%w: app_id requires type appl, got %q", ErrInvalidFilter, f.Type)
	}
	if len(f.AssetID) > 0 && f.Type != "" && f.Type != TxTypeAssetTransfer {
		return fmt.Errorf("%w: asset_id requires type axfer, got %q", ErrInvalidFilter, f.Type)
	}
	return nil
}

type NamedFilter struct {
	Name   string `yaml:"name" json:"name"`
	Filter Filter `yaml:"filter" json:"filter"`
}

// FilterSet is the ordered, immutable set of filters registered at startup.
type FilterSet struct {
	filters []NamedFilter
	index   map[string]int
}

// NewFilterSet validates filters and keeps their registration order.
func NewFilterSet(filters []NamedFilter) (*FilterSet, error) {
	fs := &FilterSet{
		filters: make([]NamedFilter, 0, len(filters)),
		index:   make(map[string]int, len(filters)),
	}
	for _, nf := range filters {
		if nf.Name == "" {
			return nil, fmt.Errorf("%w: empty filter name", ErrInvalidFilter)
		}
		if _, dup := fs.index[nf.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFilter, nf.Name)
		}
		if err := nf.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("filter %s: %w", nf.Name, err)
		}
		fs.index[nf.Name] = len(fs.filters)
		fs.filters = append(fs.filters, nf)
	}
	return fs, nil
}

// All returns the filters in registration order. Callers must not modify it.
func (fs *FilterSet) All() []NamedFilter {
	return fs.filters
}

func (fs *FilterSet) Len() int {
	return len(fs.filters)
}

func (fs *FilterSet) Has(name string) bool {
	_, ok := fs.index[name]
	return ok
}

func (fs *FilterSet) Get(name string) (NamedFilter, bool) {
	i, ok := fs.index[name]
	if !ok {
		return NamedFilter{}, false
	}
	return fs.filters[i], true
}

func (fs *FilterSet) Names() []string {
	names := make([]string, len(fs.filters))
	for i, nf := range fs.filters {
		names[i] = nf.Name
	}
	return names
}
