package ai_test

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/bestm80eva/Solace/internal/game/ai"
)

// stubScripts answers every Lua precondition with result.
type stubScripts struct {
	result bool
	calls  []string
}

func (s *stubScripts) PreconditionHook(fn string) (ai.PreconditionFn, error) {
	if fn == "undefined" {
		return nil, fmt.Errorf("no global function %q", fn)
	}
	return func(*ai.WorldState) bool {
		s.calls = append(s.calls, fn)
		return s.result
	}, nil
}

func bruteDomain() *ai.Domain {
	return &ai.Domain{
		ID: "brute",
		Tasks: []*ai.Task{
			{ID: "behave"},
			{ID: "fight"},
		},
		Methods: []*ai.Method{
			{TaskID: "behave", ID: "bail", Precondition: "self_critical", Subtasks: []string{"run"}},
			{TaskID: "behave", ID: "engage", Precondition: "in_battle", Subtasks: []string{"fight"}},
			{TaskID: "behave", ID: "idle", Subtasks: []string{"wait"}},
			{TaskID: "fight", ID: "finish", Precondition: "opponent_helpless", Subtasks: []string{"strike_weak"}},
			{TaskID: "fight", ID: "enraged", Precondition: "lua:enraged", Subtasks: []string{"smash", "swing"}},
			{TaskID: "fight", ID: "plain", Precondition: "!opponent_wounded", Subtasks: []string{"smash", "swing"}},
			{TaskID: "fight", ID: "press", Subtasks: []string{"swing"}},
		},
		Operators: []*ai.Operator{
			{ID: "smash", Action: "use", Ability: "skullknock", Target: "opponent"},
			{ID: "strike_weak", Action: "use", Ability: "strike", Target: "weakest_enemy"},
			{ID: "swing", Action: "attack", Target: "opponent"},
			{ID: "run", Action: "flee"},
			{ID: "wait", Action: "pass"},
		},
	}
}

func bruteState(selfHP, foeHP int) *ai.WorldState {
	return &ai.WorldState{
		NPC: &ai.NPCState{UID: "n1", Name: "Brute", Kind: "mobile", HP: selfHP, MaxHP: 100, TargetUID: "p1"},
		Combatants: []*ai.CombatantState{
			{UID: "p1", Name: "Alice", Kind: "player", HP: foeHP, MaxHP: 100},
		},
	}
}

func mustPlanner(t *testing.T, scripts ai.ScriptSource) *ai.Planner {
	t.Helper()
	p, err := ai.NewPlanner(bruteDomain(), scripts)
	if err != nil {
		t.Fatalf("NewPlanner: %v", err)
	}
	return p
}

func actions(t *testing.T, p *ai.Planner, ws *ai.WorldState) []ai.PlannedAction {
	t.Helper()
	plan, err := p.Plan(ws)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return plan
}

func TestPlanner_FreshOpponentGetsAbilityThenAttack(t *testing.T) {
	plan := actions(t, mustPlanner(t, &stubScripts{}), bruteState(100, 100))
	want := []ai.PlannedAction{
		{Action: "use", Ability: "skullknock", Target: "p1"},
		{Action: "attack", Target: "p1"},
	}
	if fmt.Sprint(plan) != fmt.Sprint(want) {
		t.Fatalf("plan = %v, want %v", plan, want)
	}
}

func TestPlanner_WoundedOpponentFallsThroughNegation(t *testing.T) {
	plan := actions(t, mustPlanner(t, &stubScripts{}), bruteState(100, 40))
	if len(plan) != 1 || plan[0].Action != "attack" {
		t.Fatalf("expected a lone attack, got %v", plan)
	}
}

func TestPlanner_LuaPreconditionConsulted(t *testing.T) {
	scripts := &stubScripts{result: true}
	plan := actions(t, mustPlanner(t, scripts), bruteState(100, 40))
	if len(plan) == 0 || plan[0].Ability != "skullknock" {
		t.Fatalf("expected the enraged method to apply, got %v", plan)
	}
	if len(scripts.calls) != 1 || scripts.calls[0] != "enraged" {
		t.Fatalf("expected one call to enraged, got %v", scripts.calls)
	}
}

func TestPlanner_HelplessOpponentTargetsWeakest(t *testing.T) {
	ws := bruteState(100, 80)
	ws.Combatants[0].Incapacitated = true
	ws.Combatants = append(ws.Combatants, &ai.CombatantState{UID: "p2", Kind: "player", HP: 5, MaxHP: 100})
	plan := actions(t, mustPlanner(t, &stubScripts{}), ws)
	if len(plan) != 1 || plan[0].Ability != "strike" || plan[0].Target != "p2" {
		t.Fatalf("expected strike on p2, got %v", plan)
	}
}

func TestPlanner_CriticalHealthFlees(t *testing.T) {
	plan := actions(t, mustPlanner(t, &stubScripts{}), bruteState(20, 100))
	if len(plan) != 1 || plan[0].Action != "flee" || plan[0].Target != "" {
		t.Fatalf("expected flee, got %v", plan)
	}
}

func TestPlanner_NoOpponentPasses(t *testing.T) {
	ws := bruteState(100, 100)
	ws.NPC.TargetUID = ""
	plan := actions(t, mustPlanner(t, &stubScripts{}), ws)
	if len(plan) != 1 || plan[0].Action != "pass" {
		t.Fatalf("expected pass, got %v", plan)
	}
}

func TestPlanner_Plan_RejectsNilState(t *testing.T) {
	p := mustPlanner(t, &stubScripts{})
	if _, err := p.Plan(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
	if _, err := p.Plan(&ai.WorldState{}); err == nil {
		t.Fatal("expected error for nil NPC")
	}
}

func TestNewPlanner_BindErrors(t *testing.T) {
	d := bruteDomain()
	d.Methods[0].Precondition = "lua:undefined"
	if _, err := ai.NewPlanner(d, &stubScripts{}); err == nil {
		t.Fatal("expected error for undefined lua function")
	}
	d = bruteDomain()
	d.Methods[0].Precondition = "feeling_lucky"
	if _, err := ai.NewPlanner(d, &stubScripts{}); err == nil {
		t.Fatal("expected error for unknown built-in")
	}
}

func TestPlanner_Plan_DoesNotMutateDomain(t *testing.T) {
	p := mustPlanner(t, &stubScripts{})
	before := fmt.Sprint(p.Domain().MethodsForTask("fight")[1].Subtasks)
	for i := 0; i < 3; i++ {
		actions(t, p, bruteState(100, 100))
	}
	if after := fmt.Sprint(p.Domain().MethodsForTask("fight")[1].Subtasks); after != before {
		t.Fatalf("subtasks changed from %s to %s", before, after)
	}
}

func TestProperty_Plan_NeverErrorsAndResolvesTargets(t *testing.T) {
	p := mustPlanner(t, &stubScripts{})
	rapid.Check(t, func(rt *rapid.T) {
		ws := bruteState(
			rapid.IntRange(0, 100).Draw(rt, "self"),
			rapid.IntRange(1, 100).Draw(rt, "foe"),
		)
		ws.Combatants[0].Incapacitated = rapid.Bool().Draw(rt, "helpless")
		plan, err := p.Plan(ws)
		if err != nil {
			rt.Fatalf("Plan error: %v", err)
		}
		if len(plan) == 0 {
			rt.Fatal("expected at least one action")
		}
		for _, a := range plan {
			if (a.Action == "use" || a.Action == "attack") && a.Target == "" {
				rt.Fatalf("offensive action without target: %v", a)
			}
		}
	})
}
