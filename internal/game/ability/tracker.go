package ability

import "sync"

// Completion records one completed invocation.
type Completion struct {
	Ability  string
	TargetID string
	Tick     uint64
}

// Tracker keeps a participant's per-ability cooldowns and its most recent
// completed invocation. All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	readyAt map[string]uint64
	last    *Completion
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{readyAt: make(map[string]uint64)}
}

// Ready reports whether ability may be used at tick now, and if not, how many
// ticks remain.
func (t *Tracker) Ready(ability string, now uint64) (bool, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.readyAt[ability]
	if !ok || now >= at {
		return true, 0
	}
	return false, at - now
}

// StartCooldown blocks ability for duration ticks after now. A zero duration clears it.
func (t *Tracker) StartCooldown(ability string, now uint64, duration int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if duration <= 0 {
		delete(t.readyAt, ability)
		return
	}
	t.readyAt[ability] = now + uint64(duration)
}

// Record stores c as the most recent completed invocation.
func (t *Tracker) Record(c Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &c
}

// Last returns the most recent completed invocation, if any.
func (t *Tracker) Last() (Completion, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Completion{}, false
	}
	return *t.last, true
}

// Combos reports whether the most recent completion used predecessor against targetID.
func (t *Tracker) Combos(predecessor, targetID string) bool {
	if predecessor == "" {
		return false
	}
	last, ok := t.Last()
	return ok && last.Ability == predecessor && last.TargetID == targetID
}
