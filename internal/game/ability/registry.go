package ability

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds ability definitions keyed by name. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds def.
//
// Postcondition: Returns an error if def fails Check or its name is taken.
func (r *Registry) Register(def *Definition) error {
	if err := def.Check(); err != nil {
		return err
	}
	key := strings.ToLower(def.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[key]; ok {
		return fmt.Errorf("ability %q already registered", def.Name)
	}
	r.defs[key] = def
	return nil
}

// Get returns the definition named name, ignoring case, or an error wrapping ErrNotFound.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// HookPrefix marks a target or effect that is implemented by a script function.
const HookPrefix = "lua:"

// HookSource resolves scripted effect and validation functions by name.
type HookSource interface {
	EffectHook(fn string) (EffectFn, error)
	ValidateHook(fn string) (ValidateFn, error)
}

// EffectSpec is the YAML form of an ability's effect.
type EffectSpec struct {
	Type      string `yaml:"type"`
	Condition string `yaml:"condition"`
	Rounds    int    `yaml:"rounds"`
	Hook      string `yaml:"hook"`
}

// Spec is the YAML form of a Definition.
type Spec struct {
	Name            string         `yaml:"name"`
	DisplayName     string         `yaml:"display_name"`
	CastTime        int            `yaml:"cast_time"`
	CastMessage     string         `yaml:"cast_message"`
	CombosWith      string         `yaml:"combos_with"`
	BasePotency     int            `yaml:"base_potency"`
	ComboPotency    int            `yaml:"combo_potency"`
	SavingThrow     string         `yaml:"saving_throw"`
	Costs           []ResourceCost `yaml:"costs"`
	Cooldown        int            `yaml:"cooldown"`
	InitiatesCombat bool           `yaml:"initiates_combat"`
	Target          string         `yaml:"target"`
	Effect          EffectSpec     `yaml:"effect"`
}

// Build converts s into a Definition, binding hooks through hooks.
// hooks may be nil when s references no script functions.
//
// Postcondition: The returned Definition passes Check, or an error is returned.
func (s Spec) Build(hooks HookSource) (*Definition, error) {
	def := &Definition{
		Name:            strings.ToLower(s.Name),
		DisplayName:     s.DisplayName,
		CastTime:        s.CastTime,
		CastMessage:     s.CastMessage,
		CombosWith:      strings.ToLower(s.CombosWith),
		BasePotency:     s.BasePotency,
		ComboPotency:    s.ComboPotency,
		SavingThrow:     s.SavingThrow,
		Costs:           append([]ResourceCost(nil), s.Costs...),
		Cooldown:        s.Cooldown,
		InitiatesCombat: s.InitiatesCombat,
	}
	if def.ComboPotency == 0 {
		def.ComboPotency = def.BasePotency
	}

	switch t := s.Target; {
	case t == "" || t == "enemy" || t == "other":
		def.Validate = Other()
	case t == "any":
	case t == "self":
		def.Validate = Self()
	case strings.HasPrefix(t, HookPrefix):
		if hooks == nil {
			return nil, fmt.Errorf("ability %q: target %q requires scripting", s.Name, t)
		}
		fn, err := hooks.ValidateHook(strings.TrimPrefix(t, HookPrefix))
		if err != nil {
			return nil, fmt.Errorf("ability %q: %w", s.Name, err)
		}
		def.Validate = fn
	default:
		return nil, fmt.Errorf("ability %q: unknown target %q", s.Name, t)
	}

	switch s.Effect.Type {
	case "damage":
		def.Effect = Damage()
	case "damage_condition":
		if s.Effect.Condition == "" || s.Effect.Rounds <= 0 {
			return nil, fmt.Errorf("ability %q: damage_condition needs condition and rounds", s.Name)
		}
		def.Effect = DamageCondition(s.Effect.Condition, s.Effect.Rounds)
	case "condition":
		if s.Effect.Condition == "" || s.Effect.Rounds <= 0 {
			return nil, fmt.Errorf("ability %q: condition needs condition and rounds", s.Name)
		}
		def.Effect = Condition(s.Effect.Condition, s.Effect.Rounds)
	case "lua":
		if hooks == nil {
			return nil, fmt.Errorf("ability %q: lua effect requires scripting", s.Name)
		}
		fn, err := hooks.EffectHook(s.Effect.Hook)
		if err != nil {
			return nil, fmt.Errorf("ability %q: %w", s.Name, err)
		}
		def.Effect = fn
	default:
		return nil, fmt.Errorf("ability %q: unknown effect type %q", s.Name, s.Effect.Type)
	}

	if err := def.Check(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDirectory reads every *.yaml file in dir into a new Registry.
// Unknown YAML fields are rejected.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a populated Registry, or an error naming the first bad file.
func LoadDirectory(dir string, hooks HookSource) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ability dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var spec Spec
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		def, err := spec.Build(hooks)
		if err != nil {
			return nil, fmt.Errorf("building %q: %w", path, err)
		}
		if err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("registering %q: %w", path, err)
		}
	}
	return reg, nil
}
