package gameserver

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/ai"
	"github.com/bestm80eva/Solace/internal/game/clock"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/command"
	"github.com/bestm80eva/Solace/internal/game/condition"
	"github.com/bestm80eva/Solace/internal/game/dice"
	"github.com/bestm80eva/Solace/internal/game/npc"
	"github.com/bestm80eva/Solace/internal/game/session"
)

// lowSrc rolls 1 on every die, so saving throws always fail.
type lowSrc struct{}

func (lowSrc) Intn(int) int { return 0 }

type nopHandle struct{}

func (nopHandle) Cancel() {}

type manualScheduler struct{}

func (manualScheduler) Interval(string, time.Duration, func()) clock.Cancelable { return nopHandle{} }

type fixture struct {
	sessions  *session.Manager
	abilities *ability.Registry
	resolver  *ability.Resolver
	battles   *combat.BattleManager
	handler   *CombatHandler
	npcs      *NPCHandler
	dispatch  *Dispatcher
}

func mustBuild(t *testing.T, s ability.Spec) *ability.Definition {
	t.Helper()
	def, err := s.Build(nil)
	require.NoError(t, err)
	return def
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	roller := dice.NewLoggedRoller(lowSrc{}, logger)

	conds := condition.NewRegistry()
	conds.Register(&condition.Def{ID: "stunned", Name: "Stunned", Incapacitates: true})

	reg := ability.NewRegistry()
	stamina := func(n int) []ability.ResourceCost {
		return []ability.ResourceCost{{Kind: ability.Stamina, Amount: n}}
	}
	require.NoError(t, reg.Register(mustBuild(t, ability.Spec{
		Name: "strike", DisplayName: "Strike", CombosWith: "strike",
		BasePotency: 10, ComboPotency: 15, SavingThrow: "reflex",
		Costs: stamina(5), InitiatesCombat: true, Effect: ability.EffectSpec{Type: "damage"},
	})))
	require.NoError(t, reg.Register(mustBuild(t, ability.Spec{
		Name: "skullknock", DisplayName: "Skullknock", CastTime: 2, BasePotency: 8,
		SavingThrow: "toughness", Costs: stamina(20), Cooldown: 4, InitiatesCombat: true,
		Effect: ability.EffectSpec{Type: "damage_condition", Condition: "stunned", Rounds: 2},
	})))
	require.NoError(t, reg.Register(&ability.Definition{
		Name:        "focus",
		DisplayName: "Focus",
		Validate:    ability.Self(),
		Effect: func(ability.Resolution) (ability.Outcome, error) {
			return ability.Outcome{Hit: true, Message: "You feel focused."}, nil
		},
	}))

	sessions := session.NewManager(conds, "1")
	resolver := ability.NewResolver(roller, logger)
	battles := combat.NewBattleManager(manualScheduler{}, roller, logger)
	handler := NewCombatHandler(sessions, reg, resolver, battles, logger)
	return &fixture{
		sessions:  sessions,
		abilities: reg,
		resolver:  resolver,
		battles:   battles,
		handler:   handler,
		npcs:      NewNPCHandler(sessions, reg, resolver, battles, logger),
		dispatch:  NewDispatcher(command.DefaultRegistry(), handler, sessions, logger),
	}
}

func (f *fixture) player(t *testing.T, id, name string, hp, stamina int, damage string) *session.Character {
	t.Helper()
	c, err := f.sessions.AddPlayer(id, session.Stats{
		Name: name, Level: 1, MaxHealth: hp, Stamina: stamina, Damage: damage,
		Abilities: []string{"strike", "skullknock", "focus"},
	}, "arena")
	require.NoError(t, err)
	return c
}

func (f *fixture) mobile(t *testing.T, name string, hp int, abilities ...string) *session.Character {
	t.Helper()
	c, err := f.sessions.SpawnMobile(&npc.Template{
		ID: name, Name: name, Level: 1, MaxHP: hp, Stamina: 50, Damage: "1", Abilities: abilities,
	}, "arena")
	require.NoError(t, err)
	return c
}

func drain(c *session.Character) []string {
	var out []string
	for {
		select {
		case msg := <-c.Entity().Events():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func anyContains(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestAttack_OneShotNeverAdmitsBattle(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "15")
	rat := f.mobile(t, "rat", 10)

	require.NoError(t, f.handler.Attack("u1", "rat"))
	assert.LessOrEqual(t, rat.Health(), 0)
	assert.Equal(t, 0, f.battles.Active())
	assert.Equal(t, combat.Standing, alice.PlayState())
	assert.Equal(t, combat.Standing, rat.PlayState())
	assert.Equal(t, 100, alice.Health(), "target never acts in the opening round")

	msgs := drain(alice)
	assert.Contains(t, msgs, "You attack rat!")
	assert.Contains(t, msgs, "rat is dead!")
}

func TestAttack_StartsBattleAndTargetCounterAttacks(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "5")
	brute := f.mobile(t, "brute", 50)

	require.NoError(t, f.handler.Attack("u1", "bru"))
	assert.Equal(t, 45, brute.Health())
	assert.Equal(t, 1, f.battles.Active())
	assert.Equal(t, combat.Fighting, alice.PlayState())

	f.battles.Round()
	assert.Equal(t, 40, brute.Health())
	assert.Equal(t, 99, alice.Health())
}

func TestAttack_Errors(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")

	err := f.handler.Attack("u1", "ghost")
	assert.EqualError(t, err, `You don't see "ghost" here.`)

	err = f.handler.Attack("u1", "alice")
	assert.ErrorIs(t, err, combat.ErrSelfTarget)
	assert.Equal(t, "You cannot fight yourself.", playerMessage(err))
}

func TestAttack_JoinsExistingBattleAndRetargets(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")
	bob := f.player(t, "u2", "Bob", 100, 50, "1")
	brute := f.mobile(t, "brute", 50)
	rat := f.mobile(t, "rat", 50)

	require.NoError(t, f.handler.Attack("u1", "brute"))
	require.NoError(t, f.handler.Attack("u2", "brute"))
	b, ok := f.battles.BattleOf(bob)
	require.True(t, ok)
	assert.True(t, b.Has(brute))
	assert.Contains(t, drain(brute), "Bob joins the fight against you!")

	err := f.handler.Attack("u2", "rat")
	assert.ErrorContains(t, err, "not part of your battle")
	assert.False(t, b.Has(rat))

	require.NoError(t, f.handler.Attack("u2", "alice"))
	assert.Equal(t, "u1", b.Target(bob).ID())
}

func TestUse_OpensBattleThenCombos(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	brute := f.mobile(t, "brute", 50)

	require.NoError(t, f.handler.Use("u1", "strike", "brute"))
	assert.Equal(t, 40, brute.Health(), "opening strike at base potency")
	assert.Equal(t, 45, alice.Resources().Get(ability.Stamina))

	require.NoError(t, f.handler.Use("u1", "Strike", ""))
	f.battles.Round()
	assert.Equal(t, 25, brute.Health(), "second strike on the same target uses combo potency")
	assert.Equal(t, 40, alice.Resources().Get(ability.Stamina))
}

func TestUse_InsufficientStaminaCancelsAtCastEnd(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 10, "1")
	brute := f.mobile(t, "brute", 50)

	require.NoError(t, f.handler.Use("u1", "skullknock", "brute"))
	assert.Equal(t, combat.Casting, alice.PlayState())
	assert.Equal(t, 50, brute.Health())

	f.battles.Round()
	assert.Equal(t, 10, alice.Resources().Get(ability.Stamina))
	assert.True(t, anyContains(drain(alice), "insufficient resources"))
	assert.False(t, brute.HasCondition("stunned"))
}

func TestUse_Refusals(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	f.mobile(t, "brute", 50)

	err := f.handler.Use("u1", "fireball", "brute")
	assert.EqualError(t, err, "You don't know how to fireball.")

	err = f.handler.Use("u1", "focus", "")
	require.ErrorIs(t, err, combat.ErrNotInBattle)
	assert.Contains(t, drain(alice), "You cannot use Focus: not in a battle.")

	err = f.handler.Use("u1", "strike", "")
	require.ErrorIs(t, err, ability.ErrInvalidTarget)
	assert.Equal(t, 0, f.battles.Active())
}

func TestUse_BusyWhileCasting(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	f.mobile(t, "brute", 50)

	require.NoError(t, f.handler.Use("u1", "skullknock", "brute"))
	drain(alice)
	err := f.handler.Use("u1", "strike", "")
	require.ErrorIs(t, err, combat.ErrBusy)
	assert.True(t, anyContains(drain(alice), "already using an ability"))
}

func TestUse_SelfAbilityInsideBattle(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	f.mobile(t, "brute", 50)
	require.NoError(t, f.handler.Attack("u1", "brute"))
	drain(alice)

	require.NoError(t, f.handler.Use("u1", "focus", "alice"))
	f.battles.Round()
	assert.Contains(t, drain(alice), "You feel focused.")
}

func TestFlee(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	brute := f.mobile(t, "brute", 50)

	assert.ErrorIs(t, f.handler.Flee("u1"), combat.ErrNotInBattle)

	require.NoError(t, f.handler.Attack("u1", "brute"))
	require.NoError(t, f.handler.Flee("u1"))
	assert.Equal(t, combat.Standing, alice.PlayState())
	assert.Contains(t, drain(brute), "Alice flees!")

	f.battles.Round()
	assert.Equal(t, 0, f.battles.Active())
	assert.Equal(t, combat.Standing, brute.PlayState())
}

func TestViews(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")
	f.mobile(t, "brute", 50)

	lines, err := f.handler.Status("u1")
	require.NoError(t, err)
	assert.Equal(t, "Health: 100/100", lines[0])
	assert.Equal(t, "You are standing.", lines[2])

	lines, err = f.handler.Abilities("u1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Focus (free) - ready",
		"Skullknock (20 stamina) - ready",
		"Strike (5 stamina) - ready",
	}, lines)

	lines, err = f.handler.Look("u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"brute is here."}, lines)
}

func TestNPCHandler_QueuesReadyAbility(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	brute := f.mobile(t, "brute", 50, "skullknock", "strike")

	assert.Equal(t, 0, f.npcs.Tick(), "mobiles outside battle do nothing")
	require.NoError(t, f.handler.Attack("u1", "brute"))

	assert.Equal(t, 1, f.npcs.Tick())
	b, ok := f.battles.BattleOf(brute)
	require.True(t, ok)
	require.NotNil(t, b.Pending(brute))
	assert.Equal(t, "skullknock", b.Pending(brute).Definition().Name)
	assert.Equal(t, 0, f.npcs.Tick(), "a pending invocation is not replaced")

	f.battles.Round()
	f.battles.Round()
	assert.True(t, alice.HasCondition("stunned"))
}

func TestDisconnect_WithdrawsBeforeRemoving(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	brute := f.mobile(t, "brute", 50, "skullknock")

	require.NoError(t, f.handler.Attack("u1", "brute"))
	require.Equal(t, 1, f.npcs.Tick())
	b, ok := f.battles.BattleOf(brute)
	require.True(t, ok)
	inv := b.Pending(brute)
	require.NotNil(t, inv)
	hp := alice.Health()

	require.NoError(t, f.handler.Disconnect("u1"))
	_, ok = f.sessions.Get("u1")
	assert.False(t, ok)
	assert.True(t, alice.Entity().IsClosed())
	_, ok = f.battles.BattleOf(alice)
	assert.False(t, ok)
	assert.Equal(t, ability.StateCancelled, inv.State())
	assert.ErrorIs(t, inv.Err(), ability.ErrInvalidTarget)

	f.battles.Round()
	f.battles.Round()
	assert.Equal(t, hp, alice.Health())
	assert.False(t, alice.HasCondition("stunned"))
	assert.Equal(t, 0, f.battles.Active())
	assert.Equal(t, combat.Standing, brute.PlayState())
	assert.Contains(t, drain(brute), "Alice leaves the battle.")

	assert.Error(t, f.handler.Disconnect("u1"))
}

func TestDisconnect_OutsideBattle(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")
	require.NoError(t, f.handler.Disconnect("u1"))
	assert.Equal(t, 0, f.sessions.Count())
}

func tacticsDomain() *ai.Domain {
	return &ai.Domain{
		ID:    "brute",
		Tasks: []*ai.Task{{ID: "behave"}, {ID: "fight"}},
		Methods: []*ai.Method{
			{TaskID: "behave", ID: "bail", Precondition: "self_critical", Subtasks: []string{"run"}},
			{TaskID: "behave", ID: "engage", Precondition: "in_battle", Subtasks: []string{"fight"}},
			{TaskID: "fight", ID: "finish", Precondition: "opponent_helpless", Subtasks: []string{"fireball_it", "strike_it", "swing"}},
			{TaskID: "fight", ID: "open", Subtasks: []string{"knock_it", "swing"}},
		},
		Operators: []*ai.Operator{
			{ID: "fireball_it", Action: "use", Ability: "fireball", Target: "opponent"},
			{ID: "strike_it", Action: "use", Ability: "strike", Target: "opponent"},
			{ID: "knock_it", Action: "use", Ability: "skullknock", Target: "opponent"},
			{ID: "swing", Action: "attack", Target: "opponent"},
			{ID: "run", Action: "flee"},
		},
	}
}

func (f *fixture) tactician(t *testing.T, name, domain string, hp int) (*NPCHandler, *session.Character) {
	t.Helper()
	planners := ai.NewRegistry()
	require.NoError(t, planners.Register(tacticsDomain(), nil))
	mob, err := f.sessions.SpawnMobile(&npc.Template{
		ID: name, Name: name, Level: 1, MaxHP: hp, Stamina: 50, Damage: "1",
		Abilities: []string{"strike", "skullknock"}, AI: domain,
	}, "arena")
	require.NoError(t, err)
	h := NewNPCHandler(f.sessions, f.abilities, f.resolver, f.battles, zap.NewNop(), WithPlanners(planners))
	return h, mob
}

func TestNPCHandler_FollowsPlan(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	h, brute := f.tactician(t, "brute", "brute", 50)

	require.NoError(t, f.handler.Attack("u1", "brute"))
	assert.Equal(t, 1, h.Tick())
	b, ok := f.battles.BattleOf(brute)
	require.True(t, ok)
	require.NotNil(t, b.Pending(brute))
	assert.Equal(t, "skullknock", b.Pending(brute).Definition().Name)

	f.battles.Round()
	f.battles.Round()
	require.True(t, alice.HasCondition("stunned"))

	// The unknown fireball is skipped in favour of the next feasible action.
	assert.Equal(t, 1, h.Tick())
	require.NotNil(t, b.Pending(brute))
	assert.Equal(t, "strike", b.Pending(brute).Definition().Name)
}

func TestNPCHandler_PlannedFlee(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	h, brute := f.tactician(t, "brute", "brute", 100)

	require.NoError(t, f.handler.Attack("u1", "brute"))
	drain(alice)
	brute.ApplyDamage(80)

	assert.Equal(t, 0, h.Tick())
	_, ok := f.battles.BattleOf(brute)
	assert.False(t, ok)
	assert.Equal(t, combat.Standing, brute.PlayState())
	assert.Contains(t, drain(alice), "brute flees!")
}

func TestNPCHandler_PlanFallsBackToAttack(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")
	h, brute := f.tactician(t, "brute", "brute", 50)
	require.NoError(t, brute.Resources().Spend(ability.ResourceCost{Kind: ability.Stamina, Amount: 50}))

	require.NoError(t, f.handler.Attack("u1", "brute"))
	assert.Equal(t, 0, h.Tick())
	b, ok := f.battles.BattleOf(brute)
	require.True(t, ok)
	assert.Nil(t, b.Pending(brute))
	assert.Equal(t, "u1", b.Target(brute).ID())
}

func TestNPCHandler_UnknownDomainUsesFirstReadyAbility(t *testing.T) {
	f := newFixture(t)
	f.player(t, "u1", "Alice", 100, 50, "1")
	h, brute := f.tactician(t, "brute", "nobody", 50)

	require.NoError(t, f.handler.Attack("u1", "brute"))
	assert.Equal(t, 1, h.Tick())
	b, ok := f.battles.BattleOf(brute)
	require.True(t, ok)
	assert.Equal(t, "strike", b.Pending(brute).Definition().Name)
}

func TestDispatcher(t *testing.T) {
	f := newFixture(t)
	alice := f.player(t, "u1", "Alice", 100, 50, "1")
	f.mobile(t, "giant rat", 50)

	assert.False(t, f.dispatch.Handle("u1", "dance"))
	assert.False(t, f.dispatch.Handle("u1", "attack"))
	assert.False(t, f.dispatch.Handle("u1", "kill ghost"))
	assert.False(t, f.dispatch.Handle("u1", "flee"))
	msgs := drain(alice)
	assert.Equal(t, []string{
		`Unknown command "dance". Type help for a list.`,
		"Usage: attack <target>",
		`You don't see "ghost" here.`,
		"You are not fighting anyone.",
	}, msgs)

	assert.False(t, f.dispatch.Handle("u1", "use strike giant rat"))
	assert.Equal(t, 1, f.battles.Active())
	msgs = drain(alice)
	assert.Contains(t, msgs, "Your Strike hits giant rat for 10 damage.")

	assert.False(t, f.dispatch.Handle("u1", "help"))
	assert.Len(t, drain(alice), len(command.BuiltinCommands()))

	assert.True(t, f.dispatch.Handle("u1", "quit"))
	assert.True(t, f.dispatch.Handle("nobody", "look"))
}

func TestProperty_ConcurrentAttacksKeepOneBattlePerCharacter(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		n := rapid.IntRange(2, 6).Draw(rt, "players")
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			if _, err := f.sessions.AddPlayer(id, session.Stats{
				Name: "p" + id, Level: 1, MaxHealth: 1000, Damage: "1",
			}, "arena"); err != nil {
				rt.Fatalf("add: %v", err)
			}
		}
		targets := make([]string, n)
		for i := range targets {
			targets[i] = "p" + string(rune('a'+rapid.IntRange(0, n-1).Draw(rt, "target")))
		}

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = f.handler.Attack(string(rune('a'+i)), targets[i])
			}(i)
		}
		wg.Wait()

		seen := map[string]string{}
		for i := 0; i < n; i++ {
			c, _ := f.sessions.Get(string(rune('a' + i)))
			b, ok := f.battles.BattleOf(c)
			if !ok {
				if c.PlayState() != combat.Standing {
					rt.Fatalf("%s is %s outside any battle", c.ID(), c.PlayState())
				}
				continue
			}
			if prev, dup := seen[c.ID()]; dup && prev != b.ID() {
				rt.Fatalf("%s is in two battles", c.ID())
			}
			seen[c.ID()] = b.ID()
			if !b.Has(c) {
				rt.Fatalf("%s indexed to a battle it is not in", c.ID())
			}
		}
	})
}
