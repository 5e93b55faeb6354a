package ai_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/bestm80eva/Solace/internal/game/ai"
)

func minimalDomain() *ai.Domain {
	return &ai.Domain{
		ID:    "test",
		Tasks: []*ai.Task{{ID: ai.RootTask}},
		Methods: []*ai.Method{{
			TaskID:   ai.RootTask,
			ID:       "m1",
			Subtasks: []string{"op1"},
		}},
		Operators: []*ai.Operator{{ID: "op1", Action: "pass"}},
	}
}

func TestDomain_Validate_RejectsEmpty(t *testing.T) {
	d := &ai.Domain{}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for empty Domain")
	}
}

func TestDomain_Validate_AcceptsMinimal(t *testing.T) {
	if err := minimalDomain().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDomain_Validate_Rejects(t *testing.T) {
	cases := map[string]func(d *ai.Domain){
		"missing root task": func(d *ai.Domain) {
			d.Tasks[0].ID = "fight"
			d.Methods[0].TaskID = "fight"
		},
		"unknown action": func(d *ai.Domain) { d.Operators[0].Action = "dance" },
		"use without ability": func(d *ai.Domain) {
			d.Operators[0].Action = ai.ActionUse
		},
		"unknown target": func(d *ai.Domain) {
			d.Operators[0].Action = ai.ActionAttack
			d.Operators[0].Target = "nearest_enemy"
		},
		"dangling subtask": func(d *ai.Domain) { d.Methods[0].Subtasks = []string{"nowhere"} },
		"empty subtasks":   func(d *ai.Domain) { d.Methods[0].Subtasks = nil },
		"duplicate operator": func(d *ai.Domain) {
			d.Operators = append(d.Operators, &ai.Operator{ID: "op1", Action: "flee"})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := minimalDomain()
			mutate(d)
			if err := d.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestDomain_OperatorByID_Found(t *testing.T) {
	d := &ai.Domain{
		Operators: []*ai.Operator{{ID: "smash", Action: "use", Ability: "skullknock", Target: "opponent"}},
	}
	op, ok := d.OperatorByID("smash")
	if !ok || op.Ability != "skullknock" {
		t.Fatal("expected to find operator")
	}
}

func TestDomain_OperatorByID_NotFound(t *testing.T) {
	d := &ai.Domain{}
	if _, ok := d.OperatorByID("missing"); ok {
		t.Fatal("expected not found")
	}
}

func TestDomain_MethodsForTask_ReturnsOrdered(t *testing.T) {
	d := &ai.Domain{
		Methods: []*ai.Method{
			{TaskID: "fight", ID: "m1", Subtasks: []string{"op1"}},
			{TaskID: "fight", ID: "m2", Subtasks: []string{"op2"}},
			{TaskID: "other", ID: "m3", Subtasks: []string{"op3"}},
		},
	}
	methods := d.MethodsForTask("fight")
	if len(methods) != 2 || methods[0].ID != "m1" || methods[1].ID != "m2" {
		t.Fatalf("expected [m1 m2], got %v", methods)
	}
}

func TestLoadDomains_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `domain:
  id: brute
  tasks:
    - id: behave
  methods:
    - task: behave
      id: finish
      precondition: opponent_helpless
      subtasks: [smash]
    - task: behave
      id: default
      subtasks: [swing]
  operators:
    - id: smash
      action: use
      ability: skullknock
      target: opponent
    - id: swing
      action: attack
      target: opponent
`
	if err := os.WriteFile(filepath.Join(dir, "brute.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	domains, err := ai.LoadDomains(dir)
	if err != nil {
		t.Fatalf("LoadDomains: %v", err)
	}
	if len(domains) != 1 || domains[0].ID != "brute" {
		t.Fatalf("expected brute domain, got %v", domains)
	}
	op, ok := domains[0].OperatorByID("smash")
	if !ok || op.Ability != "skullknock" || op.Target != "opponent" {
		t.Fatalf("smash operator not parsed: %+v", op)
	}
}

func TestLoadDomains_MissingKey(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ai.LoadDomains(dir); err == nil {
		t.Fatal("expected error for missing domain key")
	}
}

func TestProperty_Domain_DuplicateTaskRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		extra := rapid.IntRange(1, 5).Draw(rt, "extra")
		d := minimalDomain()
		for i := 0; i < extra; i++ {
			d.Tasks = append(d.Tasks, &ai.Task{ID: fmt.Sprintf("t%d", i)})
		}
		dup := rapid.IntRange(0, len(d.Tasks)-1).Draw(rt, "dup")
		d.Tasks = append(d.Tasks, &ai.Task{ID: d.Tasks[dup].ID})
		if err := d.Validate(); err == nil {
			rt.Fatalf("expected duplicate task %q to be rejected", d.Tasks[dup].ID)
		}
	})
}
