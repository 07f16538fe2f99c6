// Package registry merges the capabilities of many providers into one flat
// namespace.
package registry

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/dotcommander/capmux/internal/capability"
	"github.com/dotcommander/capmux/internal/errs"
)

// Provider is the part of a provider handle the registry needs.
type Provider interface {
	ID() string
	Discover(ctx context.Context) ([]capability.Descriptor, error)
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
	// OnClose runs fn when the provider closes, or right away when it
	// already has.
	OnClose(fn func(id string))
}

type entry struct {
	provider Provider
	desc     capability.Descriptor
}

// Registry maps capability names to the provider that publishes them.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	order     []string
	providers []Provider
	logger    *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger.With("component", "registry"),
	}
}

// Register discovers p's capabilities and merges them. When any name is
// already taken the registry is left untouched and a
// *errs.NameCollisionError is returned.
func (r *Registry) Register(ctx context.Context, p Provider) error {
	descs, err := p.Discover(ctx)
	if err != nil {
		return fmt.Errorf("register %s: %w", p.ID(), err)
	}

	r.mu.Lock()
	for _, known := range r.providers {
		if known.ID() == p.ID() {
			r.mu.Unlock()
			return fmt.Errorf("register %s: %w", p.ID(), errs.ErrAlreadyConnected)
		}
	}

	var collisions []string
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if _, taken := r.entries[d.Name]; taken || seen[d.Name] {
			collisions = append(collisions, d.Name)
		}
		seen[d.Name] = true
	}
	if len(collisions) > 0 {
		r.mu.Unlock()
		return errs.NewNameCollision(p.ID(), collisions)
	}

	for _, d := range descs {
		r.entries[d.Name] = entry{provider: p, desc: d}
		r.order = append(r.order, d.Name)
	}
	r.providers = append(r.providers, p)
	r.mu.Unlock()

	// A provider lost since Discover deregisters here.
	p.OnClose(r.Deregister)
	r.logger.Debug("registered", "provider", p.ID(), "capabilities", len(descs))
	return nil
}

// Deregister removes every capability owned by the provider with id.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.providers, func(p Provider) bool { return p.ID() == id })
	if idx < 0 {
		return
	}
	r.providers = slices.Delete(r.providers, idx, idx+1)

	removed := 0
	r.order = slices.DeleteFunc(r.order, func(name string) bool {
		if r.entries[name].provider.ID() != id {
			return false
		}
		delete(r.entries, name)
		removed++
		return true
	})
	r.logger.Debug("deregistered", "provider", id, "capabilities", removed)
}

// Resolve returns the provider and descriptor registered under name.
func (r *Registry) Resolve(name string) (Provider, capability.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, capability.Descriptor{}, fmt.Errorf("%w: %q", errs.ErrUnknownCapability, name)
	}
	return e.provider, e.desc, nil
}

// List yields descriptors in registration order. Each iteration works on a
// fresh snapshot.
func (r *Registry) List() iter.Seq[capability.Descriptor] {
	return func(yield func(capability.Descriptor) bool) {
		r.mu.RLock()
		snapshot := make([]capability.Descriptor, 0, len(r.order))
		for _, name := range r.order {
			snapshot = append(snapshot, r.entries[name].desc)
		}
		r.mu.RUnlock()

		for _, d := range snapshot {
			if !yield(d) {
				return
			}
		}
	}
}

// Owner returns the id of the provider publishing name.
func (r *Registry) Owner(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return "", false
	}
	return e.provider.ID(), true
}

// Providers returns the registered provider ids in registration order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
