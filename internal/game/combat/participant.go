// Package combat drives real-time battles: which participants fight whom,
// one resolution round per global tick, and retirement of finished battles.
package combat

import (
	"errors"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

var (
	ErrAlreadyEngaged = errors.New("already in a battle")
	ErrSelfTarget     = errors.New("cannot battle yourself")
	ErrNotInBattle    = errors.New("not in a battle")
	ErrBusy           = errors.New("already using an ability")
)

// PlayState is a participant's coarse activity.
type PlayState string

const (
	Standing PlayState = "standing"
	Fighting PlayState = "fighting"
	Casting  PlayState = "casting"
)

// Participant is a combat-capable actor. The session layer owns its lifecycle;
// combat only reads and mutates combat-relevant fields while it is in a battle.
type Participant interface {
	ability.Combatant
	PlayState() PlayState
	SetPlayState(s PlayState)
	// Damage returns the basic attack damage expression.
	Damage() dice.Expression
	// TickConditions advances condition durations by one round and returns
	// the IDs of conditions that expired.
	TickConditions() []string
	// ClearConditions drops every active condition. Conditions do not
	// outlast the battle they were applied in.
	ClearConditions()
}
