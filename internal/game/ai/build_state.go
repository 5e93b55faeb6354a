package ai

import (
	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/session"
)

// member is the part of *session.Character the snapshot reads beyond
// combat.Participant.
type member interface {
	Kind() session.Kind
	MaxHealth() int
}

// BuildWorldState constructs a WorldState snapshot from an active Battle for mob.
//
// Precondition: mob and b must not be nil.
// Postcondition: ws.NPC.UID == mob.ID(); every other member is represented in
// battle order.
func BuildWorldState(mob *session.Character, b *combat.Battle) *WorldState {
	ws := &WorldState{
		NPC: &NPCState{
			UID:     mob.ID(),
			Name:    mob.Name(),
			Kind:    session.KindMobile.String(),
			HP:      mob.Health(),
			MaxHP:   mob.MaxHealth(),
			Stamina: mob.Resources().Get(ability.Stamina),
			Mana:    mob.Resources().Get(ability.Mana),
			RoomID:  mob.Room(),
		},
	}
	if t := b.Target(mob); t != nil {
		ws.NPC.TargetUID = t.ID()
	}
	for _, p := range b.Participants() {
		if p.ID() == mob.ID() {
			continue
		}
		kind, maxHP := session.KindPlayer.String(), p.Health()
		if m, ok := p.(member); ok {
			kind, maxHP = m.Kind().String(), m.MaxHealth()
		}
		ws.Combatants = append(ws.Combatants, &CombatantState{
			UID:           p.ID(),
			Name:          p.Name(),
			Kind:          kind,
			HP:            p.Health(),
			MaxHP:         maxHP,
			Incapacitated: p.Incapacitated(),
			Dead:          p.Health() <= 0,
		})
	}
	return ws
}
