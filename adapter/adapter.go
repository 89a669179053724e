package adapter

import (
	"context"

	"github.com/tieubaoca/memory-be/types"
)

// SearchOptions carries the per-call limits a source adapter honors.
type SearchOptions struct {
	MaxResults        int
	Days              int
	ExcludedFolderIDs []string
}

// SourceAdapter is the capability every data source implements. Search never
// mutates adapter state and returns a source-scoped error on failure; the
// retrieval orchestrator isolates that failure from the other sources.
type SourceAdapter interface {
	Type() types.SourceType
	Search(ctx context.Context, keywords []string, opts SearchOptions) ([]types.Document, error)
}

// Registry is the fixed adapter table built once at startup. Sources are
// registered explicitly, not discovered at runtime.
type Registry struct {
	adapters []SourceAdapter
}

func NewRegistry(adapters ...SourceAdapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		if a != nil {
			r.adapters = append(r.adapters, a)
		}
	}
	return r
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []SourceAdapter {
	return r.adapters
}

// Enabled filters the registry by source type. An empty filter means all.
func (r *Registry) Enabled(sources []types.SourceType) []SourceAdapter {
	if len(sources) == 0 {
		return r.adapters
	}
	enabled := make(map[types.SourceType]bool, len(sources))
	for _, s := range sources {
		enabled[s] = true
	}
	var out []SourceAdapter
	for _, a := range r.adapters {
		if enabled[a.Type()] {
			out = append(out, a)
		}
	}
	return out
}

// Get returns the adapter for one source type, or nil.
func (r *Registry) Get(source types.SourceType) SourceAdapter {
	for _, a := range r.adapters {
		if a.Type() == source {
			return a
		}
	}
	return nil
}
