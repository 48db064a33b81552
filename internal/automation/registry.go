package automation

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the in-memory index of a loaded project's routines and
// triggers, including which routines each trigger starts.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]*Routine
	triggers map[string]*Trigger
	bindings map[string][]string // trigger id → routine ids
}

// NewRegistry indexes routines and triggers and resolves every trigger id
// a routine references.
func NewRegistry(routines []*Routine, triggers []*Trigger) (*Registry, error) {
	r := &Registry{
		routines: make(map[string]*Routine, len(routines)),
		triggers: make(map[string]*Trigger, len(triggers)),
		bindings: make(map[string][]string),
	}

	for _, t := range triggers {
		if _, dup := r.triggers[t.ID()]; dup {
			return nil, fmt.Errorf("duplicate trigger id %q", t.ID())
		}
		r.triggers[t.ID()] = t
	}

	for _, rt := range routines {
		if _, dup := r.routines[rt.ID()]; dup {
			return nil, fmt.Errorf("duplicate routine id %q", rt.ID())
		}
		r.routines[rt.ID()] = rt
		for _, tid := range rt.TriggerIDs() {
			if _, ok := r.triggers[tid]; !ok {
				return nil, fmt.Errorf("routine %q: %w: %s", rt.ID(), ErrTriggerNotFound, tid)
			}
			r.bindings[tid] = append(r.bindings[tid], rt.ID())
		}
	}
	return r, nil
}

// Routine returns a routine by id.
func (r *Registry) Routine(id string) (*Routine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoutineNotFound, id)
	}
	return rt, nil
}

// Trigger returns a trigger by id.
func (r *Registry) Trigger(id string) (*Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triggers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	return t, nil
}

// Routines returns all routines sorted by id.
func (r *Registry) Routines() []*Routine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Routine, 0, len(r.routines))
	for _, rt := range r.routines {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Triggers returns all triggers sorted by id.
func (r *Registry) Triggers() []*Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Trigger, 0, len(r.triggers))
	for _, t := range r.triggers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// BoundRoutines returns the routines a trigger starts, in declaration order.
func (r *Registry) BoundRoutines(triggerID string) []*Routine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.bindings[triggerID]
	out := make([]*Routine, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.routines[id])
	}
	return out
}
