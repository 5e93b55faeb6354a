// Package gameserver translates player commands into combat operations and
// reports their outcome back to the acting character.
package gameserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/session"
)

// userError is shown to the player verbatim.
type userError string

func (e userError) Error() string { return string(e) }

// reported wraps an error the player has already been told about.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }

// CombatHandler handles attack, use, and flee, plus the read-only combat views.
//
// Precondition: All fields must be non-nil after construction.
type CombatHandler struct {
	sessions  *session.Manager
	abilities *ability.Registry
	resolver  *ability.Resolver
	battles   *combat.BattleManager
	logger    *zap.Logger
}

// NewCombatHandler creates a CombatHandler.
//
// Precondition: all arguments must be non-nil.
// Postcondition: Returns a non-nil CombatHandler.
func NewCombatHandler(
	sessions *session.Manager,
	abilities *ability.Registry,
	resolver *ability.Resolver,
	battles *combat.BattleManager,
	logger *zap.Logger,
) *CombatHandler {
	return &CombatHandler{
		sessions:  sessions,
		abilities: abilities,
		resolver:  resolver,
		battles:   battles,
		logger:    logger,
	}
}

func (h *CombatHandler) character(uid string) (*session.Character, error) {
	c, ok := h.sessions.Get(uid)
	if !ok {
		return nil, fmt.Errorf("character %q not found", uid)
	}
	if c.Health() <= 0 {
		return nil, userError("You are dead.")
	}
	return c, nil
}

func (h *CombatHandler) find(actor *session.Character, name string) (*session.Character, error) {
	target, ok := h.sessions.FindInRoom(actor.Room(), name)
	if !ok {
		return nil, userError(fmt.Sprintf("You don't see %q here.", name))
	}
	return target, nil
}

// Attack makes uid fight target. Outside battle it starts a new battle with
// a basic attack, or joins the battle target is already in. Inside battle it
// switches uid's target to another member.
//
// Precondition: uid must be a live character; target must be non-empty.
// Postcondition: Returns nil on success or an error describing why not.
func (h *CombatHandler) Attack(uid, target string) error {
	actor, err := h.character(uid)
	if err != nil {
		return err
	}
	victim, err := h.find(actor, target)
	if err != nil {
		return err
	}
	if victim.ID() == actor.ID() {
		return combat.ErrSelfTarget
	}

	if b, ok := h.battles.BattleOf(actor); ok {
		if !b.Has(victim) {
			return userError(fmt.Sprintf("You are already fighting. %s is not part of your battle.", victim.Name()))
		}
		if err := b.SetAttacking(actor, victim); err != nil {
			return err
		}
		actor.SendMessage(fmt.Sprintf("You turn to attack %s.", victim.Name()))
		return nil
	}

	if _, ok := h.battles.BattleOf(victim); ok {
		if _, err := h.battles.Join(actor, victim); err != nil {
			return err
		}
		actor.SendMessage(fmt.Sprintf("You join the fight against %s!", victim.Name()))
		victim.SendMessage(fmt.Sprintf("%s joins the fight against you!", actor.Name()))
		return nil
	}

	actor.SendMessage(fmt.Sprintf("You attack %s!", victim.Name()))
	victim.SendMessage(fmt.Sprintf("%s attacks you!", actor.Name()))
	_, err = h.battles.Initiate(actor, victim)
	return err
}

// Use starts an invocation of the named ability. With no target the ability
// aims at uid's current opponent, or at uid itself outside battle.
//
// Inside battle the invocation is queued in place of the next basic attack.
// Outside battle an ability that initiates combat opens a new battle (or
// joins the target's); any other ability is refused.
//
// Precondition: uid must be a live character; name must be non-empty.
// Postcondition: Returns nil once the invocation is queued or resolved.
func (h *CombatHandler) Use(uid, name, target string) error {
	actor, err := h.character(uid)
	if err != nil {
		return err
	}
	def, err := h.abilities.Get(name)
	if err != nil || !actor.Knows(def.Name) {
		return userError(fmt.Sprintf("You don't know how to %s.", name))
	}

	b, inBattle := h.battles.BattleOf(actor)
	victim, err := h.aim(actor, b, target)
	if err != nil {
		return err
	}

	inv, err := h.resolver.Begin(def, actor, victim, h.battles.Tick())
	if err != nil {
		return reported{err}
	}

	switch {
	case inBattle:
		if !b.Has(victim) {
			err = fmt.Errorf("%w: %s is not part of your battle", ability.ErrInvalidTarget, victim.Name())
		} else {
			err = b.Queue(actor, inv)
		}
	case !def.InitiatesCombat || victim.ID() == actor.ID():
		err = combat.ErrNotInBattle
	default:
		if tb, ok := h.battles.BattleOf(victim); ok {
			if _, err = h.battles.Join(actor, victim); err == nil {
				err = tb.Queue(actor, inv)
			}
		} else {
			_, err = h.battles.Initiate(actor, victim, combat.WithOpening(inv))
		}
	}
	if err != nil {
		inv.Cancel(err)
		return reported{err}
	}
	return nil
}

// aim resolves the target of an ability use.
func (h *CombatHandler) aim(actor *session.Character, b *combat.Battle, target string) (*session.Character, error) {
	if target != "" {
		return h.find(actor, target)
	}
	if b != nil {
		if t, ok := b.Target(actor).(*session.Character); ok {
			return t, nil
		}
	}
	return actor, nil
}

// Flee withdraws uid from its battle and tells the remaining members.
//
// Postcondition: Returns an error wrapping combat.ErrNotInBattle if uid is not fighting.
func (h *CombatHandler) Flee(uid string) error {
	actor, err := h.character(uid)
	if err != nil {
		return err
	}
	b, ok := h.battles.BattleOf(actor)
	if !ok {
		return combat.ErrNotInBattle
	}
	if err := h.battles.Withdraw(actor); err != nil {
		return err
	}
	actor.SendMessage("You flee from battle!")
	for _, p := range b.Participants() {
		p.SendMessage(fmt.Sprintf("%s flees!", actor.Name()))
	}
	h.logger.Debug("character fled",
		zap.String("character", actor.ID()),
		zap.String("battle", b.ID()),
	)
	return nil
}

// Disconnect takes uid out of play. A character still in a battle withdraws
// from it first, so no pending invocation resolves against it afterwards.
//
// Postcondition: Returns an error if uid is not present.
func (h *CombatHandler) Disconnect(uid string) error {
	c, ok := h.sessions.Get(uid)
	if !ok {
		return fmt.Errorf("character %q not found", uid)
	}
	if b, ok := h.battles.BattleOf(c); ok {
		if err := h.battles.Withdraw(c); err != nil && !errors.Is(err, combat.ErrNotInBattle) {
			return err
		}
		for _, p := range b.Participants() {
			p.SendMessage(fmt.Sprintf("%s leaves the battle.", c.Name()))
		}
	}
	h.logger.Debug("character disconnected", zap.String("character", uid))
	return h.sessions.Remove(uid)
}

// Abilities lists the abilities uid knows with their costs and readiness.
func (h *CombatHandler) Abilities(uid string) ([]string, error) {
	actor, err := h.character(uid)
	if err != nil {
		return nil, err
	}
	now := h.battles.Tick()
	var lines []string
	for _, n := range h.abilities.Names() {
		if !actor.Knows(n) {
			continue
		}
		def, err := h.abilities.Get(n)
		if err != nil {
			continue
		}
		costs := make([]string, 0, len(def.Costs))
		for _, c := range def.Costs {
			costs = append(costs, c.String())
		}
		cost := "free"
		if len(costs) > 0 {
			cost = strings.Join(costs, ", ")
		}
		ready := "ready"
		if ok, left := actor.Abilities().Ready(def.Name, now); !ok {
			ready = fmt.Sprintf("ready in %d rounds", left)
		}
		lines = append(lines, fmt.Sprintf("%s (%s) - %s", def.Label(), cost, ready))
	}
	if len(lines) == 0 {
		lines = append(lines, "You know no abilities.")
	}
	return lines, nil
}

// Status describes uid's health, resources, play state, and conditions.
func (h *CombatHandler) Status(uid string) ([]string, error) {
	c, ok := h.sessions.Get(uid)
	if !ok {
		return nil, fmt.Errorf("character %q not found", uid)
	}
	pool := c.Resources()
	lines := []string{
		fmt.Sprintf("Health: %d/%d", c.Health(), c.MaxHealth()),
		fmt.Sprintf("Stamina: %d/%d  Mana: %d/%d",
			pool.Get(ability.Stamina), pool.Max(ability.Stamina),
			pool.Get(ability.Mana), pool.Max(ability.Mana)),
		fmt.Sprintf("You are %s.", c.PlayState()),
	}
	if conds := c.Conditions(); len(conds) > 0 {
		lines = append(lines, "Conditions: "+strings.Join(conds, ", "))
	}
	return lines, nil
}

// Look lists the other characters in uid's room.
func (h *CombatHandler) Look(uid string) ([]string, error) {
	c, ok := h.sessions.Get(uid)
	if !ok {
		return nil, fmt.Errorf("character %q not found", uid)
	}
	var lines []string
	for _, o := range h.sessions.InRoom(c.Room()) {
		if o.ID() == c.ID() {
			continue
		}
		switch {
		case o.Health() <= 0:
			lines = append(lines, fmt.Sprintf("The corpse of %s lies here.", o.Name()))
		case o.PlayState() == combat.Standing:
			lines = append(lines, fmt.Sprintf("%s is here.", o.Name()))
		default:
			lines = append(lines, fmt.Sprintf("%s is here, %s.", o.Name(), o.PlayState()))
		}
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		lines = append(lines, "You are alone.")
	}
	return lines, nil
}

// playerMessage renders err for the acting player.
func playerMessage(err error) string {
	var ue userError
	switch {
	case errors.As(err, &ue):
		return string(ue)
	case errors.Is(err, combat.ErrSelfTarget):
		return "You cannot fight yourself."
	case errors.Is(err, combat.ErrNotInBattle):
		return "You are not fighting anyone."
	case errors.Is(err, combat.ErrAlreadyEngaged):
		return "That fight is already under way."
	case errors.Is(err, combat.ErrBusy):
		return "You are already using an ability."
	default:
		return "Something went wrong."
	}
}
