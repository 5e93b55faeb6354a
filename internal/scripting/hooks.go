package scripting

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/ai"
)

var (
	_ ability.HookSource = (*Manager)(nil)
	_ ai.ScriptSource    = (*Manager)(nil)
)

// EffectHook binds the Lua function fn as an ability effect.
//
// The function receives one table:
//
//	{ ability, level, potency, combo, actor = {...}, target = {...},
//	  save = { name, rolled, roll, bonus, dc, saved } }
//
// and returns a table { hit, damage, condition, rounds, message }. A missing
// hit field counts as a hit.
//
// Postcondition: Returns an error if fn is not defined in the loaded scripts.
func (m *Manager) EffectHook(fn string) (ability.EffectFn, error) {
	if !m.Has(fn) {
		return nil, fmt.Errorf("scripting: effect hook %q is not defined", fn)
	}
	return func(r ability.Resolution) (ability.Outcome, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		ret, err := m.callLocked(fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{resolutionTable(L, r)}
		})
		if err != nil {
			return ability.Outcome{}, err
		}
		tbl, ok := ret.(*lua.LTable)
		if !ok {
			return ability.Outcome{}, fmt.Errorf("scripting: effect hook %q returned %s, want table", fn, ret.Type())
		}
		return outcomeFromTable(tbl), nil
	}, nil
}

// ValidateHook binds the Lua function fn as a target check. The function
// receives actor and target tables and returns nil or true to accept, or a
// string or false to reject.
//
// Postcondition: Returns an error if fn is not defined in the loaded scripts.
func (m *Manager) ValidateHook(fn string) (ability.ValidateFn, error) {
	if !m.Has(fn) {
		return nil, fmt.Errorf("scripting: validate hook %q is not defined", fn)
	}
	return func(actor, target ability.Combatant) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		ret, err := m.callLocked(fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{combatantTable(L, actor), combatantTable(L, target)}
		})
		if err != nil {
			return err
		}
		switch v := ret.(type) {
		case lua.LString:
			return errors.New(string(v))
		case lua.LBool:
			if !bool(v) {
				return errors.New("that is not a valid target")
			}
		}
		return nil
	}, nil
}

// PreconditionHook binds the Lua function fn as a tactics precondition. The
// function receives one table:
//
//	{ self = {...}, opponent = {...} or nil, combatants = { {...}, ... } }
//
// and applies when it returns a truthy value. Script errors count as false.
//
// Postcondition: Returns an error if fn is not defined in the loaded scripts.
func (m *Manager) PreconditionHook(fn string) (ai.PreconditionFn, error) {
	if !m.Has(fn) {
		return nil, fmt.Errorf("scripting: precondition hook %q is not defined", fn)
	}
	return func(ws *ai.WorldState) bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		ret, err := m.callLocked(fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{worldTable(L, ws)}
		})
		if err != nil {
			m.logger.Warn("precondition hook failed", zap.String("hook", fn), zap.Error(err))
			return false
		}
		return lua.LVAsBool(ret)
	}, nil
}

func worldTable(L *lua.LState, ws *ai.WorldState) *lua.LTable {
	self := L.NewTable()
	self.RawSetString("id", lua.LString(ws.NPC.UID))
	self.RawSetString("name", lua.LString(ws.NPC.Name))
	self.RawSetString("health", lua.LNumber(ws.NPC.HP))
	self.RawSetString("max_health", lua.LNumber(ws.NPC.MaxHP))
	self.RawSetString("stamina", lua.LNumber(ws.NPC.Stamina))
	self.RawSetString("mana", lua.LNumber(ws.NPC.Mana))

	t := L.NewTable()
	t.RawSetString("self", self)
	list := L.NewTable()
	for _, c := range ws.Combatants {
		ct := stateTable(L, c)
		list.Append(ct)
		if c.UID == ws.NPC.TargetUID && !c.Dead {
			t.RawSetString("opponent", ct)
		}
	}
	t.RawSetString("combatants", list)
	return t
}

func stateTable(L *lua.LState, c *ai.CombatantState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(c.UID))
	t.RawSetString("name", lua.LString(c.Name))
	t.RawSetString("kind", lua.LString(c.Kind))
	t.RawSetString("health", lua.LNumber(c.HP))
	t.RawSetString("max_health", lua.LNumber(c.MaxHP))
	t.RawSetString("incapacitated", lua.LBool(c.Incapacitated))
	t.RawSetString("dead", lua.LBool(c.Dead))
	return t
}

func combatantTable(L *lua.LState, c ability.Combatant) *lua.LTable {
	t := L.NewTable()
	if c == nil {
		return t
	}
	t.RawSetString("id", lua.LString(c.ID()))
	t.RawSetString("name", lua.LString(c.Name()))
	t.RawSetString("level", lua.LNumber(c.Level()))
	t.RawSetString("health", lua.LNumber(c.Health()))
	t.RawSetString("incapacitated", lua.LBool(c.Incapacitated()))
	return t
}

func resolutionTable(L *lua.LState, r ability.Resolution) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("ability", lua.LString(r.Definition.Name))
	t.RawSetString("level", lua.LNumber(r.Level))
	t.RawSetString("potency", lua.LNumber(r.Potency))
	t.RawSetString("combo", lua.LBool(r.Combo))
	t.RawSetString("actor", combatantTable(L, r.Actor))
	t.RawSetString("target", combatantTable(L, r.Target))

	save := L.NewTable()
	save.RawSetString("name", lua.LString(r.Save.Name))
	save.RawSetString("rolled", lua.LBool(r.Save.Rolled))
	save.RawSetString("roll", lua.LNumber(r.Save.Roll))
	save.RawSetString("bonus", lua.LNumber(r.Save.Bonus))
	save.RawSetString("dc", lua.LNumber(r.Save.DC))
	save.RawSetString("saved", lua.LBool(r.Save.Saved))
	t.RawSetString("save", save)
	return t
}

func outcomeFromTable(t *lua.LTable) ability.Outcome {
	out := ability.Outcome{Hit: true}
	if v := t.RawGetString("hit"); v != lua.LNil {
		out.Hit = lua.LVAsBool(v)
	}
	if v, ok := t.RawGetString("damage").(lua.LNumber); ok {
		out.Damage = int(v)
	}
	if v, ok := t.RawGetString("condition").(lua.LString); ok {
		out.Condition = string(v)
	}
	if v, ok := t.RawGetString("rounds").(lua.LNumber); ok {
		out.ConditionRounds = int(v)
	}
	if v, ok := t.RawGetString("message").(lua.LString); ok {
		out.Message = string(v)
	}
	return out
}
