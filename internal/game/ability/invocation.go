package ability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/dice"
)

// State is an invocation lifecycle state.
type State string

const (
	StateCasting   State = "casting"
	StateResolving State = "resolving"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
)

const (
	eventResolve  = "resolve"
	eventComplete = "complete"
	eventCancel   = "cancel"
)

// baseSaveDC is added to the actor's level to form a saving throw DC.
const baseSaveDC = 10

// Report describes what one Advance call did.
type Report struct {
	InvocationID string
	Ability      string
	ActorID      string
	TargetID     string
	State        State
	Remaining    int
	Combo        bool
	Potency      int
	Save         SaveResult
	Outcome      Outcome
	// TargetHealth is the target's health after the outcome was applied.
	TargetHealth int
	// Err is the cancellation reason when State is StateCancelled.
	Err error
}

// Resolver creates invocations and supplies the dice and logger they resolve with.
// A Resolver is safe for concurrent use.
type Resolver struct {
	roller *dice.Roller
	logger *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: roller and logger must be non-nil.
func NewResolver(roller *dice.Roller, logger *zap.Logger) *Resolver {
	return &Resolver{roller: roller, logger: logger}
}

// Invocation is one in-flight use of a Definition by an actor against a target.
// It is driven by a single owner and is not safe for concurrent use.
type Invocation struct {
	id        string
	def       *Definition
	actor     Combatant
	target    Combatant
	level     int
	remaining int
	machine   *fsm.FSM
	err       error
	resolver  *Resolver
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateCasting),
		fsm.Events{
			{Name: eventResolve, Src: []string{string(StateCasting)}, Dst: string(StateResolving)},
			{Name: eventComplete, Src: []string{string(StateResolving)}, Dst: string(StateComplete)},
			{Name: eventCancel, Src: []string{string(StateCasting), string(StateResolving)}, Dst: string(StateCancelled)},
		},
		fsm.Callbacks{},
	)
}

// Begin starts an invocation of def by actor against target at tick now.
// Cooldown and target validation happen here; resources are not touched until
// the cast completes.
//
// Precondition: def, actor must be non-nil.
// Postcondition: On error the returned invocation is already cancelled and the
// actor has been told why; the error wraps ErrOnCooldown or ErrInvalidTarget.
func (r *Resolver) Begin(def *Definition, actor, target Combatant, now uint64) (*Invocation, error) {
	inv := &Invocation{
		id:        uuid.NewString(),
		def:       def,
		actor:     actor,
		target:    target,
		level:     actor.Level(),
		remaining: def.CastTime,
		machine:   newMachine(),
		resolver:  r,
	}

	if ok, left := actor.Abilities().Ready(def.Name, now); !ok {
		inv.cancel(fmt.Errorf("%w: %s ready in %d rounds", ErrOnCooldown, def.Label(), left))
		return inv, inv.err
	}
	if err := def.checkTarget(actor, target); err != nil {
		inv.cancel(err)
		return inv, err
	}
	if def.CastTime > 0 && def.CastMessage != "" {
		actor.SendMessage(def.CastMessage)
	}
	r.logger.Debug("invocation started",
		zap.String("invocation", inv.id),
		zap.String("ability", def.Name),
		zap.String("actor", actor.ID()),
		zap.String("target", target.ID()),
		zap.Int("cast_time", def.CastTime),
	)
	return inv, nil
}

// ID returns the invocation's unique identifier.
func (i *Invocation) ID() string { return i.id }

// Definition returns the ability being used.
func (i *Invocation) Definition() *Definition { return i.def }

// Actor returns the combatant using the ability.
func (i *Invocation) Actor() Combatant { return i.actor }

// Target returns the combatant the ability is aimed at.
func (i *Invocation) Target() Combatant { return i.target }

// Remaining returns the number of cast ticks left.
func (i *Invocation) Remaining() int { return i.remaining }

// State returns the current lifecycle state.
func (i *Invocation) State() State { return State(i.machine.Current()) }

// Done reports whether the invocation reached complete or cancelled.
func (i *Invocation) Done() bool {
	s := i.State()
	return s == StateComplete || s == StateCancelled
}

// Err returns the cancellation reason, or nil.
func (i *Invocation) Err() error { return i.err }

// Cancel aborts an unfinished invocation without spending resources.
// It is a no-op on a finished invocation.
func (i *Invocation) Cancel(reason error) {
	if i.Done() {
		return
	}
	if reason == nil {
		reason = ErrInterrupted
	}
	i.cancel(reason)
}

func (i *Invocation) cancel(reason error) {
	i.err = reason
	if err := i.machine.Event(context.Background(), eventCancel); err != nil {
		i.resolver.logger.Error("invocation cancel transition failed",
			zap.String("invocation", i.id),
			zap.Error(err),
		)
	}
	i.actor.SendMessage(fmt.Sprintf("You cannot use %s: %s.", i.def.Label(), reason.Error()))
	i.resolver.logger.Debug("invocation cancelled",
		zap.String("invocation", i.id),
		zap.String("ability", i.def.Name),
		zap.String("actor", i.actor.ID()),
		zap.Error(reason),
	)
}

func (i *Invocation) report() Report {
	r := Report{
		InvocationID: i.id,
		Ability:      i.def.Name,
		ActorID:      i.actor.ID(),
		State:        i.State(),
		Remaining:    i.remaining,
		Err:          i.err,
	}
	if i.target != nil {
		r.TargetID = i.target.ID()
		r.TargetHealth = i.target.Health()
	}
	return r
}

// Advance moves the invocation forward by one tick at tick now.
// A cast time of N resolves on the Nth call; zero and one both resolve on the first.
//
// Postcondition: Resources are spent only when the invocation reaches resolving.
// On completion the actor's tracker records the use and its cooldown starts.
func (i *Invocation) Advance(now uint64) Report {
	if i.Done() {
		return i.report()
	}
	if i.actor.Health() <= 0 || i.actor.Incapacitated() {
		i.cancel(ErrIncapacitated)
		return i.report()
	}
	if i.remaining > 0 {
		i.remaining--
		if i.remaining > 0 {
			return i.report()
		}
	}

	if err := i.def.checkTarget(i.actor, i.target); err != nil {
		i.cancel(err)
		return i.report()
	}
	if err := i.actor.Resources().Spend(i.def.Costs...); err != nil {
		i.cancel(err)
		return i.report()
	}
	if err := i.machine.Event(context.Background(), eventResolve); err != nil {
		i.cancel(fmt.Errorf("%w: %v", ErrEffectFault, err))
		return i.report()
	}
	return i.resolve(now)
}

func (i *Invocation) resolve(now uint64) Report {
	combo := i.actor.Abilities().Combos(i.def.CombosWith, i.target.ID())
	potency := i.def.BasePotency
	if combo {
		potency = i.def.ComboPotency
	}
	res := Resolution{
		Definition: i.def,
		Actor:      i.actor,
		Target:     i.target,
		Level:      i.level,
		Potency:    potency,
		Combo:      combo,
		Save:       i.rollSave(),
	}

	outcome, err := i.runEffect(res)
	if err != nil {
		i.resolver.logger.Warn("ability effect failed",
			zap.String("invocation", i.id),
			zap.String("ability", i.def.Name),
			zap.Error(err),
		)
		i.cancel(err)
		rep := i.report()
		rep.Combo, rep.Potency, rep.Save = combo, potency, res.Save
		return rep
	}

	i.apply(outcome)
	if err := i.machine.Event(context.Background(), eventComplete); err != nil {
		i.resolver.logger.Error("invocation complete transition failed",
			zap.String("invocation", i.id),
			zap.Error(err),
		)
	}
	tracker := i.actor.Abilities()
	tracker.Record(Completion{Ability: i.def.Name, TargetID: i.target.ID(), Tick: now})
	tracker.StartCooldown(i.def.Name, now, i.def.Cooldown)

	rep := i.report()
	rep.Combo, rep.Potency, rep.Save, rep.Outcome = combo, potency, res.Save, outcome
	return rep
}

func (i *Invocation) rollSave() SaveResult {
	save := SaveResult{Name: i.def.SavingThrow}
	if save.Name == "" {
		return save
	}
	save.Rolled = true
	save.Roll = i.resolver.roller.D20("save:" + save.Name)
	save.Bonus = i.target.SaveBonus(save.Name)
	save.DC = baseSaveDC + i.level
	save.Saved = save.Roll+save.Bonus >= save.DC
	return save
}

// runEffect calls the effect, converting a panic or error into ErrEffectFault.
func (i *Invocation) runEffect(res Resolution) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrEffectFault, i.def.Name, r)
		}
	}()
	out, err = i.def.Effect(res)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %v", ErrEffectFault, i.def.Name, err)
	}
	if out.Damage < 0 {
		out.Damage = 0
	}
	return out, nil
}

func (i *Invocation) apply(out Outcome) {
	label := i.def.Label()
	if out.Hit && out.Damage > 0 {
		i.target.ApplyDamage(out.Damage)
	}
	if out.Hit && out.Condition != "" {
		if err := i.target.ApplyCondition(out.Condition, out.ConditionRounds); err != nil {
			i.resolver.logger.Warn("ability condition not applied",
				zap.String("ability", i.def.Name),
				zap.String("condition", out.Condition),
				zap.Error(err),
			)
		}
	}

	if out.Message != "" {
		i.actor.SendMessage(out.Message)
		return
	}
	switch {
	case !out.Hit:
		i.actor.SendMessage(fmt.Sprintf("Your %s misses %s.", label, i.target.Name()))
		i.target.SendMessage(fmt.Sprintf("%s's %s misses you.", i.actor.Name(), label))
	case out.Damage > 0:
		i.actor.SendMessage(fmt.Sprintf("Your %s hits %s for %d damage.", label, i.target.Name(), out.Damage))
		i.target.SendMessage(fmt.Sprintf("%s's %s hits you for %d damage.", i.actor.Name(), label, out.Damage))
	default:
		i.actor.SendMessage(fmt.Sprintf("Your %s lands on %s.", label, i.target.Name()))
		i.target.SendMessage(fmt.Sprintf("%s's %s lands on you.", i.actor.Name(), label))
	}
}
