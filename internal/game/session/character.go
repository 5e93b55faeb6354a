package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/condition"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

// Kind distinguishes players from mobiles.
type Kind int

const (
	KindPlayer Kind = iota
	KindMobile
)

// String returns "player" or "mobile".
func (k Kind) String() string {
	if k == KindMobile {
		return "mobile"
	}
	return "player"
}

// Stats are the combat-relevant values a character is created with.
type Stats struct {
	Name      string
	Level     int
	MaxHealth int
	Stamina   int
	Mana      int
	// Damage is the basic attack expression, e.g. "1d6+1".
	Damage    string
	Saves     map[string]int
	Abilities []string
	// AI is the tactics domain ID for mobiles.
	AI string
}

// Validate checks the stats before a character is built from them.
func (s Stats) Validate() error {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if s.Level < 1 {
		errs = append(errs, "level must be >= 1")
	}
	if s.MaxHealth < 1 {
		errs = append(errs, "max health must be >= 1")
	}
	if s.Stamina < 0 || s.Mana < 0 {
		errs = append(errs, "resource pools must be >= 0")
	}
	if _, err := dice.Parse(s.Damage); err != nil {
		errs = append(errs, fmt.Sprintf("damage: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid stats: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Character is a player or mobile. It implements combat.Participant.
// All methods are safe for concurrent use.
type Character struct {
	id         string
	kind       Kind
	name       string
	level      int
	damage     dice.Expression
	saves      map[string]int
	known      map[string]bool
	order      []string
	ai         string
	conditions *condition.Registry
	pool       *ability.Pool
	tracker    *ability.Tracker
	entity     *BridgeEntity

	mu        sync.Mutex
	health    int
	maxHealth int
	state     combat.PlayState
	room      string
	active    *condition.ActiveSet
}

var _ combat.Participant = (*Character)(nil)

// NewCharacter builds a character at full health in the standing state.
//
// Precondition: conditions must be non-nil.
// Postcondition: Returns a Character or a stats validation error.
func NewCharacter(id string, kind Kind, stats Stats, room string, conditions *condition.Registry) (*Character, error) {
	if id == "" {
		return nil, fmt.Errorf("character id must not be empty")
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("character %q: %w", id, err)
	}
	pool := ability.NewPool()
	pool.Define(ability.Stamina, stats.Stamina)
	pool.Define(ability.Mana, stats.Mana)

	saves := make(map[string]int, len(stats.Saves))
	for k, v := range stats.Saves {
		saves[k] = v
	}
	known := make(map[string]bool, len(stats.Abilities))
	order := make([]string, 0, len(stats.Abilities))
	for _, a := range stats.Abilities {
		a = strings.ToLower(a)
		if !known[a] {
			known[a] = true
			order = append(order, a)
		}
	}

	return &Character{
		id:         id,
		kind:       kind,
		name:       stats.Name,
		level:      stats.Level,
		damage:     dice.MustParse(stats.Damage),
		saves:      saves,
		known:      known,
		order:      order,
		ai:         stats.AI,
		conditions: conditions,
		pool:       pool,
		tracker:    ability.NewTracker(),
		entity:     NewBridgeEntity(id, 64),
		health:     stats.MaxHealth,
		maxHealth:  stats.MaxHealth,
		state:      combat.Standing,
		room:       room,
		active:     condition.NewActiveSet(),
	}, nil
}

func (c *Character) ID() string                  { return c.id }
func (c *Character) Name() string                { return c.name }
func (c *Character) Level() int                  { return c.level }
func (c *Character) Kind() Kind                  { return c.kind }
func (c *Character) AI() string                  { return c.ai }
func (c *Character) Damage() dice.Expression     { return c.damage }
func (c *Character) Resources() *ability.Pool    { return c.pool }
func (c *Character) Abilities() *ability.Tracker { return c.tracker }
func (c *Character) Entity() *BridgeEntity       { return c.entity }

// Knows reports whether the character has learned the named ability.
func (c *Character) Knows(name string) bool {
	return c.known[strings.ToLower(name)]
}

// AbilityNames returns the learned ability names, lowercased, in the order given at creation.
func (c *Character) AbilityNames() []string {
	return append([]string(nil), c.order...)
}

// Health returns current health; zero or below means dead.
func (c *Character) Health() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// MaxHealth returns the health ceiling.
func (c *Character) MaxHealth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxHealth
}

// ApplyDamage subtracts amount from health and returns the result.
func (c *Character) ApplyDamage(amount int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health -= amount
	return c.health
}

// Heal adds amount to health, capped at MaxHealth.
func (c *Character) Heal(amount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = min(c.health+amount, c.maxHealth)
}

// ApplyCondition applies the registered condition id for rounds and notifies the character.
//
// Postcondition: Returns an error if id is unknown or rounds <= 0.
func (c *Character) ApplyCondition(id string, rounds int) error {
	def, ok := c.conditions.Get(id)
	if !ok {
		return fmt.Errorf("unknown condition %q", id)
	}
	c.mu.Lock()
	err := c.active.Apply(def, rounds)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if def.ApplyMessage != "" {
		c.SendMessage(def.ApplyMessage)
	}
	return nil
}

// Incapacitated reports whether an active condition prevents acting.
func (c *Character) Incapacitated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return condition.Incapacitated(c.active)
}

// HasCondition reports whether condition id is active.
func (c *Character) HasCondition(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.Has(id)
}

// Conditions returns active condition IDs in sorted order.
func (c *Character) Conditions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.IDs()
}

// TickConditions advances every condition one round and returns expired IDs.
func (c *Character) TickConditions() []string {
	c.mu.Lock()
	expired := c.active.Tick()
	c.mu.Unlock()
	return c.expire(expired)
}

// ClearConditions ends every active condition, announcing each as it would on expiry.
func (c *Character) ClearConditions() {
	c.mu.Lock()
	removed := c.active.Clear()
	c.mu.Unlock()
	c.expire(removed)
}

func (c *Character) expire(defs []*condition.Def) []string {
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
		if def.ExpireMessage != "" {
			c.SendMessage(def.ExpireMessage)
		}
	}
	return ids
}

// SaveBonus returns the named save bonus less condition penalties.
func (c *Character) SaveBonus(save string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves[save] - condition.SavePenalty(c.active)
}

// PlayState returns the current play state.
func (c *Character) PlayState() combat.PlayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetPlayState replaces the play state. Room and health are untouched.
func (c *Character) SetPlayState(s combat.PlayState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Room returns the current room ID.
func (c *Character) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// SendMessage pushes text to the character's entity. Messages to a closed or
// full entity are dropped.
func (c *Character) SendMessage(text string) {
	_ = c.entity.Push(text)
}
