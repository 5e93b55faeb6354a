package ability_test

import (
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int { return f.val % n }

// fighter is a minimal in-memory Combatant.
type fighter struct {
	id, name   string
	level      int
	hp         int
	incap      bool
	saves      map[string]int
	conditions map[string]int
	pool       *ability.Pool
	tracker    *ability.Tracker
	msgs       []string
}

func newFighter(id string, hp int) *fighter {
	pool := ability.NewPool()
	pool.Define(ability.Stamina, 100)
	pool.Define(ability.Mana, 100)
	return &fighter{
		id:         id,
		name:       id,
		level:      1,
		hp:         hp,
		saves:      map[string]int{},
		conditions: map[string]int{},
		pool:       pool,
		tracker:    ability.NewTracker(),
	}
}

func (f *fighter) ID() string                  { return f.id }
func (f *fighter) Name() string                { return f.name }
func (f *fighter) Level() int                  { return f.level }
func (f *fighter) Health() int                 { return f.hp }
func (f *fighter) Incapacitated() bool         { return f.incap }
func (f *fighter) SaveBonus(save string) int   { return f.saves[save] }
func (f *fighter) Resources() *ability.Pool    { return f.pool }
func (f *fighter) Abilities() *ability.Tracker { return f.tracker }
func (f *fighter) SendMessage(text string)     { f.msgs = append(f.msgs, text) }

func (f *fighter) ApplyDamage(n int) int {
	f.hp -= n
	return f.hp
}

func (f *fighter) ApplyCondition(id string, rounds int) error {
	f.conditions[id] = rounds
	return nil
}

// resolver returns a Resolver whose d20 always rolls face.
func resolver(face int) *ability.Resolver {
	roller := dice.NewLoggedRoller(fixedSrc{val: face - 1}, zap.NewNop())
	return ability.NewResolver(roller, zap.NewNop())
}

// potencyRecorder records the last resolution and deals no damage.
type potencyRecorder struct {
	last  ability.Resolution
	calls int
}

func (p *potencyRecorder) effect() ability.EffectFn {
	return func(r ability.Resolution) (ability.Outcome, error) {
		p.last = r
		p.calls++
		return ability.Outcome{Hit: true}, nil
	}
}
