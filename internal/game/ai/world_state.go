package ai

// CombatantState captures a battle member's combat-relevant state at planning time.
//
// Kind is either "player" or "mobile".
type CombatantState struct {
	UID           string
	Name          string
	Kind          string // "player" or "mobile"
	HP            int
	MaxHP         int
	Incapacitated bool
	Dead          bool
}

// HPPercent returns current HP as a percentage of MaxHP; 0 if MaxHP == 0.
func (c *CombatantState) HPPercent() float64 {
	if c.MaxHP <= 0 {
		return 0
	}
	return float64(c.HP) / float64(c.MaxHP) * 100
}

// NPCState captures the planning mobile's own state.
type NPCState struct {
	UID     string
	Name    string
	Kind    string // always "mobile"
	HP      int
	MaxHP   int
	Stamina int
	Mana    int
	RoomID  string
	// TargetUID is the member the mobile is attacking; empty when idle.
	TargetUID string
}

// HPPercent returns current HP as a percentage of MaxHP; 0 if MaxHP == 0.
func (n *NPCState) HPPercent() float64 {
	if n.MaxHP <= 0 {
		return 0
	}
	return float64(n.HP) / float64(n.MaxHP) * 100
}

// WorldState is the snapshot passed to the HTN planner for one mobile.
//
// Invariant: NPC must not be nil.
type WorldState struct {
	NPC        *NPCState
	Combatants []*CombatantState // every other member of the battle
}

// EnemiesOf returns all living combatants of the opposite kind from uid.
//
// Precondition: uid must be the NPC's UID; ws.NPC must not be nil.
// Postcondition: returned slice contains no dead combatants and no same-kind combatants.
func (ws *WorldState) EnemiesOf(uid string) []*CombatantState {
	var out []*CombatantState
	for _, c := range ws.Combatants {
		if !c.Dead && c.UID != uid && c.Kind != ws.NPC.Kind {
			out = append(out, c)
		}
	}
	return out
}

// Opponent returns the living combatant the NPC is attacking, or nil.
func (ws *WorldState) Opponent() *CombatantState {
	if ws.NPC.TargetUID == "" {
		return nil
	}
	for _, c := range ws.Combatants {
		if c.UID == ws.NPC.TargetUID && !c.Dead {
			return c
		}
	}
	return nil
}

// WeakestEnemy returns the living enemy with the lowest HP percentage.
// Ties go to the first in combatant order. Returns nil if there are no enemies.
func (ws *WorldState) WeakestEnemy(uid string) *CombatantState {
	var best *CombatantState
	for _, c := range ws.EnemiesOf(uid) {
		if best == nil || c.HPPercent() < best.HPPercent() {
			best = c
		}
	}
	return best
}

// ResolveTarget converts an operator target token into a concrete UID.
//
// Postcondition: returns "" when no living combatant matches the token.
func (ws *WorldState) ResolveTarget(token string) string {
	switch token {
	case "", "opponent":
		if c := ws.Opponent(); c != nil {
			return c.UID
		}
		return ""
	case "self":
		return ws.NPC.UID
	case "weakest_enemy":
		if c := ws.WeakestEnemy(ws.NPC.UID); c != nil {
			return c.UID
		}
		return ""
	default:
		return ""
	}
}
