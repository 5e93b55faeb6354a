// Package ability implements declarative ability definitions and the
// per-use invocation state machine that turns them into timed effects.
package ability

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("ability not found")
	ErrInvalidTarget         = errors.New("invalid target")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrOnCooldown            = errors.New("ability on cooldown")
	ErrIncapacitated         = errors.New("actor incapacitated")
	ErrEffectFault           = errors.New("effect fault")
	ErrInterrupted           = errors.New("interrupted")
)

// Combatant is the subset of a battle participant an invocation needs.
type Combatant interface {
	ID() string
	Name() string
	Level() int
	Health() int
	// ApplyDamage subtracts amount from health and returns the new value.
	ApplyDamage(amount int) int
	ApplyCondition(id string, rounds int) error
	Incapacitated() bool
	// SaveBonus returns the modifier for the named saving throw, penalties included.
	SaveBonus(save string) int
	Resources() *Pool
	Abilities() *Tracker
	SendMessage(text string)
}

// SaveResult records a saving throw rolled by the target.
type SaveResult struct {
	Name   string
	Rolled bool
	Roll   int
	Bonus  int
	DC     int
	Saved  bool
}

// Resolution is what an EffectFn sees when an invocation resolves.
type Resolution struct {
	Definition *Definition
	Actor      Combatant
	Target     Combatant
	Level      int
	Potency    int
	Combo      bool
	Save       SaveResult
}

// Outcome is an EffectFn's decision. The invocation applies Damage and
// Condition to the target.
type Outcome struct {
	Hit             bool
	Damage          int
	Condition       string
	ConditionRounds int
	// Message overrides the default hit/miss narration when non-empty.
	Message string
}

// EffectFn computes the outcome of a resolved ability.
type EffectFn func(r Resolution) (Outcome, error)

// ValidateFn rejects a target by returning a non-nil error whose text is shown to the actor.
type ValidateFn func(actor, target Combatant) error

// Definition is the immutable description of one ability. It is shared by
// every invocation and must not be mutated after registration.
type Definition struct {
	Name            string
	DisplayName     string
	CastTime        int
	CastMessage     string
	CombosWith      string
	BasePotency     int
	ComboPotency    int
	SavingThrow     string
	Costs           []ResourceCost
	Cooldown        int
	InitiatesCombat bool
	Validate        ValidateFn
	Effect          EffectFn
}

// Label returns DisplayName, falling back to Name.
func (d *Definition) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

// Check verifies the definition's invariants.
//
// Postcondition: Returns nil iff the definition can be registered.
func (d *Definition) Check() error {
	if d.Name == "" {
		return fmt.Errorf("ability: name must not be empty")
	}
	if d.CastTime < 0 {
		return fmt.Errorf("ability %q: cast_time must be >= 0", d.Name)
	}
	if d.Cooldown < 0 {
		return fmt.Errorf("ability %q: cooldown must be >= 0", d.Name)
	}
	if d.BasePotency < 0 || d.ComboPotency < 0 {
		return fmt.Errorf("ability %q: potency must be >= 0", d.Name)
	}
	for _, c := range d.Costs {
		if c.Kind == "" || c.Amount <= 0 {
			return fmt.Errorf("ability %q: invalid resource cost %v", d.Name, c)
		}
	}
	if d.Effect == nil {
		return fmt.Errorf("ability %q: effect must not be nil", d.Name)
	}
	return nil
}

// checkTarget applies the generic target rules followed by the definition's hook.
func (d *Definition) checkTarget(actor, target Combatant) error {
	if target == nil {
		return fmt.Errorf("%w: no target", ErrInvalidTarget)
	}
	if target.Health() <= 0 {
		return fmt.Errorf("%w: %s is already dead", ErrInvalidTarget, target.Name())
	}
	if d.Validate == nil {
		return nil
	}
	if err := d.Validate(actor, target); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTarget, err.Error())
	}
	return nil
}
