package gameserver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/ai"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/session"
)

// NPCHandler drives mobiles. Once per tick every engaged mobile without a
// pending invocation acts. A mobile with a registered tactics domain follows
// the first feasible action of its plan; any other mobile queues the first of
// its abilities that is ready, affordable, and valid against its current
// opponent. Mobiles with nothing usable keep to basic attacks.
type NPCHandler struct {
	sessions  *session.Manager
	abilities *ability.Registry
	resolver  *ability.Resolver
	battles   *combat.BattleManager
	planners  *ai.Registry
	logger    *zap.Logger
}

// NPCOption configures an NPCHandler.
type NPCOption func(*NPCHandler)

// WithPlanners makes mobiles whose AI names a domain in r plan their actions.
func WithPlanners(r *ai.Registry) NPCOption {
	return func(h *NPCHandler) { h.planners = r }
}

// NewNPCHandler creates an NPCHandler.
//
// Precondition: all arguments must be non-nil.
func NewNPCHandler(
	sessions *session.Manager,
	abilities *ability.Registry,
	resolver *ability.Resolver,
	battles *combat.BattleManager,
	logger *zap.Logger,
	opts ...NPCOption,
) *NPCHandler {
	h := &NPCHandler{
		sessions:  sessions,
		abilities: abilities,
		resolver:  resolver,
		battles:   battles,
		logger:    logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Tick chooses actions for every engaged mobile and returns how many
// invocations were queued.
func (h *NPCHandler) Tick() int {
	queued := 0
	for _, mob := range h.sessions.Mobiles() {
		if mob.Health() <= 0 || mob.Incapacitated() {
			continue
		}
		b, ok := h.battles.BattleOf(mob)
		if !ok {
			continue
		}
		if inv := b.Pending(mob); inv != nil && !inv.Done() {
			continue
		}
		if p := h.plannerFor(mob); p != nil {
			if h.follow(p, b, mob) {
				queued++
			}
			continue
		}
		target := b.Target(mob)
		if target == nil || target.Health() <= 0 {
			continue
		}
		if def := h.choose(mob, target); def != nil {
			if h.queue(b, mob, target, def) {
				queued++
			}
		}
	}
	return queued
}

func (h *NPCHandler) plannerFor(mob *session.Character) *ai.Planner {
	if h.planners == nil || mob.AI() == "" {
		return nil
	}
	p, _ := h.planners.PlannerFor(mob.AI())
	return p
}

// follow plans for mob and carries out the first feasible action. It reports
// whether an invocation was queued.
func (h *NPCHandler) follow(p *ai.Planner, b *combat.Battle, mob *session.Character) bool {
	plan, err := p.Plan(ai.BuildWorldState(mob, b))
	if err != nil {
		h.logger.Warn("planning failed", zap.String("mobile", mob.ID()), zap.Error(err))
		return false
	}
	for _, a := range plan {
		switch a.Action {
		case ai.ActionPass:
			return false
		case ai.ActionFlee:
			h.flee(b, mob)
			return false
		case ai.ActionAttack:
			target := h.member(b, a.Target)
			if target == nil {
				continue
			}
			if err := b.SetAttacking(mob, target); err != nil {
				continue
			}
			return false
		case ai.ActionUse:
			target := h.member(b, a.Target)
			if target == nil || !mob.Knows(a.Ability) {
				continue
			}
			def, err := h.abilities.Get(a.Ability)
			if err != nil || !h.usable(mob, target, def) {
				continue
			}
			if target.ID() != mob.ID() {
				if err := b.SetAttacking(mob, target); err != nil {
					continue
				}
			}
			return h.queue(b, mob, target, def)
		}
	}
	return false
}

// member returns the living battle member with id, or nil.
func (h *NPCHandler) member(b *combat.Battle, id string) combat.Participant {
	if id == "" {
		return nil
	}
	for _, p := range b.Participants() {
		if p.ID() == id && p.Health() > 0 {
			return p
		}
	}
	return nil
}

func (h *NPCHandler) flee(b *combat.Battle, mob *session.Character) {
	if err := h.battles.Withdraw(mob); err != nil {
		return
	}
	for _, p := range b.Participants() {
		p.SendMessage(fmt.Sprintf("%s flees!", mob.Name()))
	}
	h.logger.Debug("mobile fled",
		zap.String("mobile", mob.ID()),
		zap.String("battle", b.ID()),
	)
}

// usable reports whether mob can use def on target now.
func (h *NPCHandler) usable(mob *session.Character, target combat.Participant, def *ability.Definition) bool {
	if ready, _ := mob.Abilities().Ready(def.Name, h.battles.Tick()); !ready {
		return false
	}
	if !mob.Resources().Affords(def.Costs...) {
		return false
	}
	return def.Validate == nil || def.Validate(mob, target) == nil
}

// choose returns the first known ability, in template order, that mob can use on target now.
func (h *NPCHandler) choose(mob *session.Character, target combat.Participant) *ability.Definition {
	for _, name := range mob.AbilityNames() {
		def, err := h.abilities.Get(name)
		if err != nil {
			continue
		}
		if h.usable(mob, target, def) {
			return def
		}
	}
	return nil
}

func (h *NPCHandler) queue(b *combat.Battle, mob *session.Character, target combat.Participant, def *ability.Definition) bool {
	inv, err := h.resolver.Begin(def, mob, target, h.battles.Tick())
	if err != nil {
		return false
	}
	if err := b.Queue(mob, inv); err != nil {
		inv.Cancel(err)
		return false
	}
	h.logger.Debug("mobile queued ability",
		zap.String("mobile", mob.ID()),
		zap.String("ability", def.Name),
		zap.String("target", target.ID()),
	)
	return true
}
