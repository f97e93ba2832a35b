package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrDuplicateAction is returned when registering a name that exists.
var ErrDuplicateAction = errors.New("action name already registered")

// Registry holds the live set of action descriptors. Read-mostly: the
// filter snapshots it every cycle, mutation happens at plugin load or
// manifest reload, never mid-cycle.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*ActionDescriptor
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*ActionDescriptor)}
}

// Register adds a descriptor. Fails with ErrDuplicateAction if the name
// is taken and rejects names that collide with built-in pseudo-actions.
func (r *Registry) Register(desc *ActionDescriptor) error {
	if desc == nil || desc.Name == "" {
		return errors.New("action descriptor missing name")
	}
	if IsBuiltin(desc.Name) {
		return fmt.Errorf("action %q shadows a built-in pseudo-action", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, desc.Name)
	}
	r.actions[desc.Name] = desc

	slog.Debug("action registered", "action", desc.Name, "policy", desc.Activation.Kind)
	return nil
}

// Unregister removes an action by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[name]; ok {
		delete(r.actions, name)
		slog.Debug("action unregistered", "action", name)
	}
}

// Get returns a descriptor by name.
func (r *Registry) Get(name string) (*ActionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.actions[name]
	return d, ok
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled returns a snapshot of all descriptors whose policy is not NEVER.
// The map is a copy; descriptors are shared (treated as immutable after
// registration).
func (r *Registry) Enabled() map[string]*ActionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ActionDescriptor, len(r.actions))
	for name, d := range r.actions {
		if d.Activation.Kind == PolicyNever {
			continue
		}
		out[name] = d
	}
	return out
}

// Snapshot returns a copy of the full descriptor map, NEVER included.
func (r *Registry) Snapshot() map[string]*ActionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*ActionDescriptor, len(r.actions))
	for name, d := range r.actions {
		out[name] = d
	}
	return out
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
