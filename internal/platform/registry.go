// Package platform keeps the publishers configured for a run.
package platform

import (
	"fmt"
	"sort"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

// Registry keeps a mapping from platform names to their publishers.
type Registry struct {
	publishers map[domain.Platform]ports.Publisher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{publishers: map[domain.Platform]ports.Publisher{}}
}

// Register adds or replaces a publisher.
func (r *Registry) Register(p ports.Publisher) {
	if r.publishers == nil {
		r.publishers = map[domain.Platform]ports.Publisher{}
	}
	r.publishers[p.Name()] = p
}

// Resolve returns a publisher by platform or an error if it is absent.
func (r *Registry) Resolve(name domain.Platform) (ports.Publisher, error) {
	if p, ok := r.publishers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("platform %s is not registered", name)
}

// Platforms lists the registered platforms in name order.
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns the publishers in platform order.
func (r *Registry) All() []ports.Publisher {
	names := r.Platforms()
	out := make([]ports.Publisher, 0, len(names))
	for _, name := range names {
		out = append(out, r.publishers[name])
	}
	return out
}

// Len reports how many platforms are configured.
func (r *Registry) Len() int { return len(r.publishers) }

// Wrap replaces every publisher with wrap(publisher).
func (r *Registry) Wrap(wrap func(ports.Publisher) ports.Publisher) {
	for name, p := range r.publishers {
		r.publishers[name] = wrap(p)
	}
}
