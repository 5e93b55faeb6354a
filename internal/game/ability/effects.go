package ability

import "errors"

// Damage deals potency damage, halved when the target saves.
func Damage() EffectFn {
	return func(r Resolution) (Outcome, error) {
		dmg := r.Potency
		if r.Save.Saved {
			dmg /= 2
		}
		return Outcome{Hit: true, Damage: dmg}, nil
	}
}

// DamageCondition deals potency damage and applies condition for rounds.
// A successful save halves the damage and resists the condition.
func DamageCondition(condition string, rounds int) EffectFn {
	return func(r Resolution) (Outcome, error) {
		out := Outcome{Hit: true, Damage: r.Potency}
		if r.Save.Saved {
			out.Damage /= 2
			return out, nil
		}
		out.Condition = condition
		out.ConditionRounds = rounds
		return out, nil
	}
}

// Condition applies condition for rounds unless the target saves.
func Condition(condition string, rounds int) EffectFn {
	return func(r Resolution) (Outcome, error) {
		if r.Save.Saved {
			return Outcome{Hit: false}, nil
		}
		return Outcome{Hit: true, Condition: condition, ConditionRounds: rounds}, nil
	}
}

var (
	errSelfTarget = errors.New("you cannot target yourself")
	errOnlySelf   = errors.New("you can only target yourself")
)

// Other rejects self-targeting.
func Other() ValidateFn {
	return func(actor, target Combatant) error {
		if actor.ID() == target.ID() {
			return errSelfTarget
		}
		return nil
	}
}

// Self only accepts the actor as target.
func Self() ValidateFn {
	return func(actor, target Combatant) error {
		if actor.ID() != target.ID() {
			return errOnlySelf
		}
		return nil
	}
}
