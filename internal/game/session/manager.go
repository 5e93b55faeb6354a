package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/condition"
	"github.com/bestm80eva/Solace/internal/game/npc"
)

// Manager tracks every live character and room occupancy.
// All methods are safe for concurrent use.
type Manager struct {
	conditions    *condition.Registry
	defaultDamage string

	mu       sync.RWMutex
	chars    map[string]*Character          // id → character
	roomSets map[string]map[string]struct{} // roomID → set of ids
}

// NewManager creates an empty Manager. defaultDamage is the basic attack
// expression used for mobiles whose template sets none.
//
// Precondition: conditions must be non-nil.
func NewManager(conditions *condition.Registry, defaultDamage string) *Manager {
	return &Manager{
		conditions:    conditions,
		defaultDamage: defaultDamage,
		chars:         make(map[string]*Character),
		roomSets:      make(map[string]map[string]struct{}),
	}
}

// AddPlayer registers a connected player in roomID.
//
// Precondition: id and roomID must be non-empty.
// Postcondition: Returns the new Character, or an error if id is already present
// or stats are invalid.
func (m *Manager) AddPlayer(id string, stats Stats, roomID string) (*Character, error) {
	c, err := NewCharacter(id, KindPlayer, stats, roomID, m.conditions)
	if err != nil {
		return nil, err
	}
	if err := m.add(c); err != nil {
		return nil, err
	}
	return c, nil
}

// SpawnMobile creates a mobile from tmpl in roomID with a fresh ID.
//
// Postcondition: Returns the new Character, or an error if tmpl is invalid.
func (m *Manager) SpawnMobile(tmpl *npc.Template, roomID string) (*Character, error) {
	damage := tmpl.Damage
	if damage == "" {
		damage = m.defaultDamage
	}
	c, err := NewCharacter(tmpl.ID+"-"+uuid.NewString(), KindMobile, Stats{
		Name:      tmpl.Name,
		Level:     tmpl.Level,
		MaxHealth: tmpl.MaxHP,
		Stamina:   tmpl.Stamina,
		Mana:      tmpl.Mana,
		Damage:    damage,
		Saves:     tmpl.Saves,
		Abilities: tmpl.Abilities,
		AI:        tmpl.AI,
	}, roomID, m.conditions)
	if err != nil {
		return nil, err
	}
	if err := m.add(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *Manager) add(c *Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.chars[c.ID()]; exists {
		return fmt.Errorf("character %q already present", c.ID())
	}
	m.chars[c.ID()] = c
	m.joinRoomLocked(c.Room(), c.ID())
	return nil
}

func (m *Manager) joinRoomLocked(roomID, id string) {
	if m.roomSets[roomID] == nil {
		m.roomSets[roomID] = make(map[string]struct{})
	}
	m.roomSets[roomID][id] = struct{}{}
}

func (m *Manager) leaveRoomLocked(roomID, id string) {
	if rs, ok := m.roomSets[roomID]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(m.roomSets, roomID)
		}
	}
}

// Remove drops a character and closes its entity.
//
// Postcondition: Returns an error if id is not present.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.chars[id]
	if !exists {
		return fmt.Errorf("character %q not found", id)
	}
	m.leaveRoomLocked(c.Room(), id)
	_ = c.Entity().Close()
	delete(m.chars, id)
	return nil
}

// Get returns the character with id.
func (m *Manager) Get(id string) (*Character, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chars[id]
	return c, ok
}

// InRoom returns the characters in roomID sorted by name, then ID.
func (m *Manager) InRoom(roomID string) []*Character {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.roomSets[roomID]
	out := make([]*Character, 0, len(ids))
	for id := range ids {
		if c, ok := m.chars[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// FindInRoom returns the first living character in roomID whose name starts
// with prefix, ignoring case. Exact matches win over prefix matches.
func (m *Manager) FindInRoom(roomID, prefix string) (*Character, bool) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, false
	}
	var partial *Character
	for _, c := range m.InRoom(roomID) {
		if c.Health() <= 0 {
			continue
		}
		name := strings.ToLower(c.Name())
		if name == prefix {
			return c, true
		}
		if partial == nil && strings.HasPrefix(name, prefix) {
			partial = c
		}
	}
	return partial, partial != nil
}

// Count returns the number of live characters.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chars)
}

// Mobiles returns every live mobile sorted by ID.
func (m *Manager) Mobiles() []*Character {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Character, 0, len(m.chars))
	for _, c := range m.chars {
		if c.Kind() == KindMobile {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Regenerate restores amount of health and of every resource to each living
// character that is not in a battle.
func (m *Manager) Regenerate(amount int) {
	m.mu.RLock()
	chars := make([]*Character, 0, len(m.chars))
	for _, c := range m.chars {
		chars = append(chars, c)
	}
	m.mu.RUnlock()

	for _, c := range chars {
		if c.Health() > 0 && c.PlayState() == combat.Standing {
			c.Heal(amount)
			c.Resources().Restore(ability.Stamina, amount)
			c.Resources().Restore(ability.Mana, amount)
		}
	}
}
