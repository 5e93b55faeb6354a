package combat_test

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/clock"
	"github.com/bestm80eva/Solace/internal/game/combat"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int { return f.val % n }

func roller() *dice.Roller {
	return dice.NewLoggedRoller(fixedSrc{val: 9}, zap.NewNop())
}

// mob is a thread-safe in-memory Participant.
type mob struct {
	id  string
	dmg dice.Expression

	mu          sync.Mutex
	hp          int
	state       combat.PlayState
	incap       bool
	msgs        []string
	conditions  map[string]int
	panicOnTick bool

	pool    *ability.Pool
	tracker *ability.Tracker
}

func newMob(id string, hp int, damage string) *mob {
	pool := ability.NewPool()
	pool.Define(ability.Stamina, 100)
	return &mob{
		id:         id,
		dmg:        dice.MustParse(damage),
		hp:         hp,
		state:      combat.Standing,
		conditions: map[string]int{},
		pool:       pool,
		tracker:    ability.NewTracker(),
	}
}

func (m *mob) ID() string   { return m.id }
func (m *mob) Name() string { return m.id }
func (m *mob) Level() int   { return 1 }

func (m *mob) Health() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hp
}

func (m *mob) ApplyDamage(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hp -= n
	return m.hp
}

func (m *mob) ApplyCondition(id string, rounds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions[id] = rounds
	return nil
}

func (m *mob) Incapacitated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incap || m.conditions["stunned"] > 0
}

func (m *mob) setIncapacitated(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incap = v
}

func (m *mob) SaveBonus(string) int        { return 0 }
func (m *mob) Resources() *ability.Pool    { return m.pool }
func (m *mob) Abilities() *ability.Tracker { return m.tracker }
func (m *mob) Damage() dice.Expression     { return m.dmg }

func (m *mob) SendMessage(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, text)
}

func (m *mob) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.msgs...)
}

func (m *mob) PlayState() combat.PlayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mob) SetPlayState(s combat.PlayState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *mob) TickConditions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnTick {
		panic("corrupt condition state")
	}
	var expired []string
	for id, left := range m.conditions {
		left--
		if left <= 0 {
			delete(m.conditions, id)
			expired = append(expired, id)
			continue
		}
		m.conditions[id] = left
	}
	return expired
}

func (m *mob) ClearConditions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.conditions)
}

func (m *mob) activeConditions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conditions))
	for id := range m.conditions {
		ids = append(ids, id)
	}
	return ids
}

// fakeScheduler records registrations and fires them on demand.
type fakeScheduler struct {
	mu   sync.Mutex
	regs []*fakeHandle
}

type fakeHandle struct {
	name      string
	period    time.Duration
	fn        func()
	cancelled atomic.Int32
}

func (h *fakeHandle) Cancel() { h.cancelled.Add(1) }

func (s *fakeScheduler) Interval(name string, period time.Duration, fn func()) clock.Cancelable {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{name: name, period: period, fn: fn}
	s.regs = append(s.regs, h)
	return h
}

func (s *fakeScheduler) registrations() []*fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeHandle(nil), s.regs...)
}

func newManager(opts ...combat.Option) (*combat.BattleManager, *fakeScheduler) {
	sched := &fakeScheduler{}
	return combat.NewBattleManager(sched, roller(), zap.NewNop(), opts...), sched
}
