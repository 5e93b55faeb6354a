package combat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

// EventKind classifies a round event.
type EventKind string

const (
	EventAttack  EventKind = "attack"
	EventAbility EventKind = "ability"
	EventDeath   EventKind = "death"
	EventExpire  EventKind = "expire"
)

// Event records one thing that happened during a round.
type Event struct {
	Kind         EventKind
	ActorID      string
	ActorName    string
	TargetID     string
	TargetName   string
	Damage       int
	TargetHealth int
	// Ability, State and Err are set for EventAbility.
	Ability string
	State   ability.State
	Err     error
	// Condition is set for EventExpire.
	Condition string
}

// Battle binds a set of participants with an attacking relation and resolves
// one round at a time. All methods are safe for concurrent use.
type Battle struct {
	id     string
	roller *dice.Roller
	logger *zap.Logger

	mu        sync.Mutex
	order     []Participant
	members   map[string]Participant
	attacking map[string]string
	pending   map[string]*ability.Invocation
}

// NewBattle creates an empty Battle.
//
// Precondition: roller and logger must be non-nil.
func NewBattle(roller *dice.Roller, logger *zap.Logger) *Battle {
	id := uuid.NewString()
	return &Battle{
		id:        id,
		roller:    roller,
		logger:    logger.With(zap.String("battle", id)),
		members:   make(map[string]Participant),
		attacking: make(map[string]string),
		pending:   make(map[string]*ability.Invocation),
	}
}

// ID returns the battle's unique identifier.
func (b *Battle) ID() string { return b.id }

// Add binds p to the battle. Adding a member twice is a no-op.
func (b *Battle) Add(p Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[p.ID()]; ok {
		return
	}
	b.members[p.ID()] = p
	b.order = append(b.order, p)
}

// Has reports whether p is bound to the battle.
func (b *Battle) Has(p Participant) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.members[p.ID()]
	return ok
}

// SetAttacking records that a's offensive action targets t, replacing any prior target.
//
// Precondition: a and t must both be members.
func (b *Battle) SetAttacking(a, t Participant) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[a.ID()]; !ok {
		return fmt.Errorf("%s: %w", a.Name(), ErrNotInBattle)
	}
	if _, ok := b.members[t.ID()]; !ok {
		return fmt.Errorf("%s: %w", t.Name(), ErrNotInBattle)
	}
	b.attacking[a.ID()] = t.ID()
	return nil
}

// Target returns the participant a is attacking, or nil.
func (b *Battle) Target(a Participant) Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.members[b.attacking[a.ID()]]
}

// Queue makes inv p's pending action. It is advanced on following rounds in
// place of the basic attack.
//
// Postcondition: Returns ErrBusy if p already has an unfinished invocation.
func (b *Battle) Queue(p Participant, inv *ability.Invocation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[p.ID()]; !ok {
		return fmt.Errorf("%s: %w", p.Name(), ErrNotInBattle)
	}
	if cur, ok := b.pending[p.ID()]; ok && !cur.Done() {
		return fmt.Errorf("%s: %w", cur.Definition().Label(), ErrBusy)
	}
	b.pending[p.ID()] = inv
	if inv.Remaining() > 0 {
		p.SetPlayState(Casting)
	}
	return nil
}

// Pending returns p's unfinished invocation, or nil.
func (b *Battle) Pending(p Participant) *ability.Invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[p.ID()]
}

// Remove unbinds p, interrupting its pending invocation.
// Participants that were attacking p retarget on the next round, and their
// invocations aimed at p are cancelled with ErrInvalidTarget.
func (b *Battle) Remove(p Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := p.ID()
	if _, ok := b.members[id]; !ok {
		return
	}
	if inv, ok := b.pending[id]; ok {
		inv.Cancel(ability.ErrInterrupted)
		delete(b.pending, id)
	}
	for actorID, inv := range b.pending {
		if t := inv.Target(); t != nil && t.ID() == id {
			inv.Cancel(errLeftBattle(p.Name()))
			delete(b.pending, actorID)
			if a, ok := b.members[actorID]; ok && a.PlayState() == Casting {
				a.SetPlayState(Fighting)
			}
		}
	}
	delete(b.members, id)
	delete(b.attacking, id)
	for i, q := range b.order {
		if q.ID() == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Participants returns a copy of the members in insertion order.
func (b *Battle) Participants() []Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Participant, len(b.order))
	copy(out, b.order)
	return out
}

// IsOver reports whether fewer than two members are alive and engaged.
// A member is engaged when it attacks, or is attacked by, another living member.
func (b *Battle) IsOver() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engagedLocked() < 2
}

func (b *Battle) engagedLocked() int {
	engaged := make(map[string]bool, len(b.order))
	for from, to := range b.attacking {
		src, ok := b.members[from]
		if !ok || src.Health() <= 0 {
			continue
		}
		dst, ok := b.members[to]
		if !ok || dst.Health() <= 0 || dst.ID() == src.ID() {
			continue
		}
		engaged[from] = true
		engaged[to] = true
	}
	return len(engaged)
}

// close interrupts every pending invocation and returns the members.
func (b *Battle) close() []Participant {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, inv := range b.pending {
		inv.Cancel(ability.ErrInterrupted)
		delete(b.pending, id)
	}
	out := make([]Participant, len(b.order))
	copy(out, b.order)
	return out
}

// Round resolves one round at tick now. Members act in insertion order: a
// pending invocation advances one tick, otherwise a member with a living
// target lands a basic attack. Dead and incapacitated members do not act.
// Conditions tick for every living member after all actions.
//
// Postcondition: Returns the round's events in the order they were applied.
func (b *Battle) Round(now uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []Event
	actors := make([]Participant, len(b.order))
	copy(actors, b.order)

	for _, p := range actors {
		inv := b.pending[p.ID()]
		if p.Health() <= 0 {
			if inv != nil {
				inv.Cancel(ability.ErrIncapacitated)
				delete(b.pending, p.ID())
			}
			continue
		}
		if inv != nil {
			events = append(events, b.advanceLocked(p, inv, now)...)
			continue
		}
		if p.Incapacitated() {
			continue
		}
		target := b.liveTargetLocked(p)
		if target == nil {
			continue
		}
		events = append(events, b.attackLocked(p, target)...)
	}

	for _, p := range actors {
		if p.Health() <= 0 {
			continue
		}
		for _, id := range p.TickConditions() {
			events = append(events, Event{
				Kind:      EventExpire,
				ActorID:   p.ID(),
				ActorName: p.Name(),
				Condition: id,
			})
		}
	}
	return events
}

func (b *Battle) advanceLocked(p Participant, inv *ability.Invocation, now uint64) []Event {
	if t := inv.Target(); t != nil && t.ID() != p.ID() {
		if _, ok := b.members[t.ID()]; !ok {
			inv.Cancel(errLeftBattle(t.Name()))
		}
	}
	rep := inv.Advance(now)
	if inv.Done() {
		delete(b.pending, p.ID())
		if p.PlayState() == Casting {
			p.SetPlayState(Fighting)
		}
	}
	if rep.State == ability.StateCasting {
		return nil
	}

	ev := Event{
		Kind:         EventAbility,
		ActorID:      p.ID(),
		ActorName:    p.Name(),
		TargetID:     rep.TargetID,
		Damage:       rep.Outcome.Damage,
		TargetHealth: rep.TargetHealth,
		Ability:      rep.Ability,
		State:        rep.State,
		Err:          rep.Err,
	}
	target := inv.Target()
	if target != nil {
		ev.TargetName = target.Name()
	}
	if rep.Err != nil {
		b.logger.Debug("ability cancelled",
			zap.String("actor", p.ID()),
			zap.String("ability", rep.Ability),
			zap.Error(rep.Err),
		)
		return []Event{ev}
	}

	events := []Event{ev}
	if tp, ok := b.members[rep.TargetID]; ok && rep.Outcome.Hit && rep.Outcome.Damage > 0 && tp.Health() <= 0 {
		events = append(events, b.deathLocked(p, tp))
	}
	return events
}

func errLeftBattle(name string) error {
	return fmt.Errorf("%w: %s is no longer in the battle", ability.ErrInvalidTarget, name)
}

// liveTargetLocked returns p's living target, retargeting to a living member
// attacking p when the current one has died or left. A member that never
// chose a target does not act.
func (b *Battle) liveTargetLocked(p Participant) Participant {
	cur, engaged := b.attacking[p.ID()]
	if !engaged {
		return nil
	}
	if t, ok := b.members[cur]; ok && t.Health() > 0 && t.ID() != p.ID() {
		return t
	}
	for _, q := range b.order {
		if q.ID() == p.ID() || q.Health() <= 0 {
			continue
		}
		if b.attacking[q.ID()] == p.ID() {
			b.attacking[p.ID()] = q.ID()
			return q
		}
	}
	delete(b.attacking, p.ID())
	return nil
}

func (b *Battle) attackLocked(p, target Participant) []Event {
	dmg := b.roller.Roll("basic attack", p.Damage()).Total()
	if dmg < 0 {
		dmg = 0
	}
	hp := target.ApplyDamage(dmg)
	p.SendMessage(fmt.Sprintf("You hit %s for %d damage.", target.Name(), dmg))
	target.SendMessage(fmt.Sprintf("%s hits you for %d damage.", p.Name(), dmg))

	events := []Event{{
		Kind:         EventAttack,
		ActorID:      p.ID(),
		ActorName:    p.Name(),
		TargetID:     target.ID(),
		TargetName:   target.Name(),
		Damage:       dmg,
		TargetHealth: hp,
	}}
	if hp <= 0 {
		events = append(events, b.deathLocked(p, target))
	}
	return events
}

func (b *Battle) deathLocked(killer, victim Participant) Event {
	killer.SendMessage(fmt.Sprintf("%s is dead!", victim.Name()))
	victim.SendMessage(fmt.Sprintf("You have been slain by %s.", killer.Name()))
	if inv, ok := b.pending[victim.ID()]; ok {
		inv.Cancel(ability.ErrIncapacitated)
		delete(b.pending, victim.ID())
	}
	b.logger.Debug("participant died",
		zap.String("killer", killer.ID()),
		zap.String("victim", victim.ID()),
	)
	return Event{
		Kind:         EventDeath,
		ActorID:      killer.ID(),
		ActorName:    killer.Name(),
		TargetID:     victim.ID(),
		TargetName:   victim.Name(),
		TargetHealth: victim.Health(),
	}
}
