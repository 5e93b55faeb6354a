package condition

import (
	"fmt"
	"sort"
)

// Active tracks one applied condition on a participant.
type Active struct {
	Def             *Def
	Stacks          int
	RoundsRemaining int

	// fresh marks a condition applied or extended since the last Tick.
	fresh bool
}

// ActiveSet tracks all conditions applied to one participant.
// It is not safe for concurrent use; the owner must serialise access.
type ActiveSet struct {
	conditions map[string]*Active
}

// NewActiveSet creates an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{conditions: make(map[string]*Active)}
}

// Apply adds def for rounds battle rounds, or refreshes it when already present.
// Re-application adds a stack (capped at MaxStacks, unstackable stays at 1) and
// keeps the longer of the two durations. The round the condition lands in is
// not counted: the next Tick passes over it.
//
// Precondition: def must not be nil; rounds must be > 0.
// Postcondition: Has(def.ID) is true.
func (s *ActiveSet) Apply(def *Def, rounds int) error {
	if def == nil {
		return fmt.Errorf("condition: Apply: def must not be nil")
	}
	if rounds <= 0 {
		return fmt.Errorf("condition %q: rounds must be > 0, got %d", def.ID, rounds)
	}
	if existing, ok := s.conditions[def.ID]; ok {
		if def.MaxStacks > 0 && existing.Stacks < def.MaxStacks {
			existing.Stacks++
		}
		if rounds > existing.RoundsRemaining {
			existing.RoundsRemaining = rounds
			existing.fresh = true
		}
		return nil
	}
	s.conditions[def.ID] = &Active{Def: def, Stacks: 1, RoundsRemaining: rounds, fresh: true}
	return nil
}

// Remove deletes the condition with id; a no-op when absent.
func (s *ActiveSet) Remove(id string) {
	delete(s.conditions, id)
}

// Tick decrements every condition by one round and removes the expired ones.
// Conditions applied or extended since the previous Tick are left as they are.
//
// Postcondition: Returns expired definitions sorted by ID; none of them remain in the set.
func (s *ActiveSet) Tick() []*Def {
	var expired []*Def
	for id, ac := range s.conditions {
		if ac.fresh {
			ac.fresh = false
			continue
		}
		ac.RoundsRemaining--
		if ac.RoundsRemaining <= 0 {
			expired = append(expired, ac.Def)
			delete(s.conditions, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired
}

// Has reports whether the condition with id is active.
func (s *ActiveSet) Has(id string) bool {
	_, ok := s.conditions[id]
	return ok
}

// Stacks returns the stack count for id, or 0.
func (s *ActiveSet) Stacks(id string) int {
	if ac, ok := s.conditions[id]; ok {
		return ac.Stacks
	}
	return 0
}

// IDs returns active condition IDs in sorted order.
func (s *ActiveSet) IDs() []string {
	out := make([]string, 0, len(s.conditions))
	for id := range s.conditions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clear removes every condition.
//
// Postcondition: Returns the removed definitions sorted by ID.
func (s *ActiveSet) Clear() []*Def {
	removed := make([]*Def, 0, len(s.conditions))
	for _, ac := range s.conditions {
		removed = append(removed, ac.Def)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	clear(s.conditions)
	return removed
}
