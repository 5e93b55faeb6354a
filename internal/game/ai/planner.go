package ai

import (
	"fmt"
	"strings"
)

// LuaPrefix marks a method precondition evaluated by a script function.
const LuaPrefix = "lua:"

// PreconditionFn reports whether a method applies to state.
type PreconditionFn func(state *WorldState) bool

// ScriptSource is the interface required by the Planner to bind Lua preconditions.
type ScriptSource interface {
	// PreconditionHook returns a predicate calling the named global function.
	// Returns an error if the function is not defined.
	PreconditionHook(fn string) (PreconditionFn, error)
}

// builtins are the preconditions every domain may name without scripting.
var builtins = map[string]PreconditionFn{
	"in_battle": func(s *WorldState) bool {
		return s.Opponent() != nil
	},
	"opponent_helpless": func(s *WorldState) bool {
		o := s.Opponent()
		return o != nil && o.Incapacitated
	},
	"opponent_wounded": func(s *WorldState) bool {
		o := s.Opponent()
		return o != nil && o.HPPercent() <= 50
	},
	"self_wounded": func(s *WorldState) bool {
		return s.NPC.HPPercent() <= 50
	},
	"self_critical": func(s *WorldState) bool {
		return s.NPC.HPPercent() <= 25
	},
	"outnumbered": func(s *WorldState) bool {
		return len(s.EnemiesOf(s.NPC.UID)) > 1
	},
}

// PlannedAction is one primitive action produced by the planner.
type PlannedAction struct {
	Action  string // "use", "attack", "flee", "pass"
	Ability string // set for "use"
	Target  string // resolved UID; empty for flee/pass or when nothing matches
}

// Planner evaluates an HTN domain for a single mobile and produces an ordered
// list of candidate actions for the current tick.
//
// Invariant: domain must not be nil; every method precondition is bound.
type Planner struct {
	domain *Domain
	checks map[string]PreconditionFn
}

// NewPlanner constructs a Planner, binding every method precondition.
//
// Precondition: domain must not be nil; scripts may be nil when no method
// uses a Lua precondition.
// Postcondition: returns an error naming the first precondition that cannot be bound.
func NewPlanner(domain *Domain, scripts ScriptSource) (*Planner, error) {
	if domain == nil {
		return nil, fmt.Errorf("ai.NewPlanner: domain must not be nil")
	}
	checks := make(map[string]PreconditionFn)
	for _, m := range domain.Methods {
		if m.Precondition == "" {
			continue
		}
		if _, done := checks[m.Precondition]; done {
			continue
		}
		fn, err := bind(m.Precondition, scripts)
		if err != nil {
			return nil, fmt.Errorf("ai.Domain %q method %q: %w", domain.ID, m.ID, err)
		}
		checks[m.Precondition] = fn
	}
	return &Planner{domain: domain, checks: checks}, nil
}

func bind(cond string, scripts ScriptSource) (PreconditionFn, error) {
	if name, negated := strings.CutPrefix(cond, "!"); negated {
		fn, err := bind(name, scripts)
		if err != nil {
			return nil, err
		}
		return func(s *WorldState) bool { return !fn(s) }, nil
	}
	if name, ok := strings.CutPrefix(cond, LuaPrefix); ok {
		if scripts == nil {
			return nil, fmt.Errorf("precondition %q needs scripting", cond)
		}
		return scripts.PreconditionHook(name)
	}
	fn, ok := builtins[cond]
	if !ok {
		return nil, fmt.Errorf("unknown precondition %q", cond)
	}
	return fn, nil
}

// Domain returns the planner's domain.
func (p *Planner) Domain() *Domain { return p.domain }

// Plan evaluates the HTN domain against state and returns the ordered plan.
//
// Precondition: state and state.NPC must not be nil.
// Postcondition: returns non-nil slice (may be empty); script failures are
// treated as precondition-false by the bound predicate.
func (p *Planner) Plan(state *WorldState) ([]PlannedAction, error) {
	if state == nil || state.NPC == nil {
		return nil, fmt.Errorf("ai.Planner.Plan: state and state.NPC must not be nil")
	}

	taskQueue := []string{RootTask}
	var result []PlannedAction

	const maxDepth = 32 // guard against infinite loops
	steps := 0

	for len(taskQueue) > 0 && steps < maxDepth {
		steps++
		current := taskQueue[0]
		taskQueue = taskQueue[1:]

		if op, ok := p.domain.OperatorByID(current); ok {
			action := PlannedAction{Action: op.Action, Ability: op.Ability}
			if op.Action == ActionUse || op.Action == ActionAttack {
				action.Target = state.ResolveTarget(op.Target)
			}
			result = append(result, action)
			continue
		}

		method := p.findApplicableMethod(current, state)
		if method == nil {
			continue
		}
		// Prepend subtasks without aliasing the domain's slice.
		next := make([]string, 0, len(method.Subtasks)+len(taskQueue))
		next = append(next, method.Subtasks...)
		taskQueue = append(next, taskQueue...)
	}

	if result == nil {
		result = []PlannedAction{}
	}
	return result, nil
}

// findApplicableMethod returns the first Method for taskID whose precondition passes,
// or nil if none applies.
//
// Methods are tried in declaration order. An empty Precondition always passes.
func (p *Planner) findApplicableMethod(taskID string, state *WorldState) *Method {
	for _, m := range p.domain.MethodsForTask(taskID) {
		if m.Precondition == "" {
			return m
		}
		if fn := p.checks[m.Precondition]; fn != nil && fn(state) {
			return m
		}
	}
	return nil
}
