package combat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/ability"
	"github.com/bestm80eva/Solace/internal/game/clock"
	"github.com/bestm80eva/Solace/internal/game/dice"
)

// DefaultRoundInterval is the period between battle rounds.
const DefaultRoundInterval = 2 * time.Second

const intervalName = "battle-round"

// Option configures a BattleManager.
type Option func(*BattleManager)

// WithInterval overrides DefaultRoundInterval.
func WithInterval(d time.Duration) Option {
	return func(m *BattleManager) { m.interval = d }
}

// WithTracer sets the tracer used for round spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *BattleManager) { m.tracer = t }
}

// InitiateOption configures a single Initiate call.
type InitiateOption func(*initiation)

type initiation struct {
	opening *ability.Invocation
}

// WithOpening makes inv the attacker's opening action instead of a basic attack.
func WithOpening(inv *ability.Invocation) InitiateOption {
	return func(i *initiation) { i.opening = inv }
}

// BattleManager is the process-wide registry of active battles. It resolves a
// round of every admitted battle on each tick and retires finished ones.
// All methods are safe for concurrent use.
type BattleManager struct {
	sched    clock.Scheduler
	roller   *dice.Roller
	logger   *zap.Logger
	tracer   trace.Tracer
	interval time.Duration
	tick     atomic.Uint64

	mu       sync.Mutex
	battles  []*Battle
	index    map[string]*Battle
	reserved map[string]struct{}
	handle   clock.Cancelable
}

// NewBattleManager creates a BattleManager that has not yet been started.
//
// Precondition: sched, roller and logger must be non-nil.
func NewBattleManager(sched clock.Scheduler, roller *dice.Roller, logger *zap.Logger, opts ...Option) *BattleManager {
	m := &BattleManager{
		sched:    sched,
		roller:   roller,
		logger:   logger,
		tracer:   otel.Tracer("solace/combat"),
		interval: DefaultRoundInterval,
		index:    make(map[string]*Battle),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers the round callback with the scheduler. Idempotent.
func (m *BattleManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return
	}
	m.handle = m.sched.Interval(intervalName, m.interval, m.Round)
	m.logger.Info("battle manager started", zap.Duration("interval", m.interval))
}

// Stop cancels the round callback. Idempotent. A round already in progress
// finishes; no further rounds start.
func (m *BattleManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return
	}
	m.handle.Cancel()
	m.handle = nil
	m.logger.Info("battle manager stopped")
}

// Tick returns the number of rounds run so far.
func (m *BattleManager) Tick() uint64 { return m.tick.Load() }

// Active returns the number of admitted battles.
func (m *BattleManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.battles)
}

// BattleOf returns the admitted battle p belongs to.
func (m *BattleManager) BattleOf(p Participant) (*Battle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.index[p.ID()]
	return b, ok
}

// Initiate starts a battle in which attacker attacks target. Both become
// fighting and the attacker's opening action resolves at once, before target
// can respond. If the opening round ends the battle it is cleaned up and
// never admitted; otherwise target counter-attacks attacker from the next tick.
//
// Precondition: attacker and target must be non-nil.
// Postcondition: On ErrAlreadyEngaged or ErrSelfTarget neither participant is changed.
func (m *BattleManager) Initiate(attacker, target Participant, opts ...InitiateOption) (*Battle, error) {
	if attacker.ID() == target.ID() {
		return nil, ErrSelfTarget
	}
	var o initiation
	for _, opt := range opts {
		opt(&o)
	}

	if err := m.reserve(attacker, target); err != nil {
		return nil, err
	}

	b := NewBattle(m.roller, m.logger)
	attacker.SetPlayState(Fighting)
	target.SetPlayState(Fighting)
	b.Add(attacker)
	b.Add(target)
	if err := b.SetAttacking(attacker, target); err != nil {
		m.discard(b, attacker, target)
		return nil, err
	}
	if o.opening != nil {
		if err := b.Queue(attacker, o.opening); err != nil {
			m.discard(b, attacker, target)
			return nil, err
		}
	}

	events := b.Round(m.Tick())
	m.logEvents(b, events)

	if b.IsOver() {
		m.discard(b, attacker, target)
		m.logger.Info("battle ended in opening round",
			zap.String("battle", b.ID()),
			zap.String("attacker", attacker.ID()),
			zap.String("target", target.ID()),
		)
		return b, nil
	}
	if err := b.SetAttacking(target, attacker); err != nil {
		m.discard(b, attacker, target)
		return nil, err
	}
	m.admit(b, attacker, target)
	m.logger.Info("battle started",
		zap.String("battle", b.ID()),
		zap.String("attacker", attacker.ID()),
		zap.String("target", target.ID()),
	)
	return b, nil
}

func (m *BattleManager) reserve(attacker, target Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range []Participant{attacker, target} {
		if _, ok := m.index[p.ID()]; ok {
			return fmt.Errorf("%s: %w", p.Name(), ErrAlreadyEngaged)
		}
		if _, ok := m.reserved[p.ID()]; ok {
			return fmt.Errorf("%s: %w", p.Name(), ErrAlreadyEngaged)
		}
	}
	m.reserved[attacker.ID()] = struct{}{}
	m.reserved[target.ID()] = struct{}{}
	return nil
}

func (m *BattleManager) admit(b *Battle, attacker, target Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, attacker.ID())
	delete(m.reserved, target.ID())
	for _, p := range b.Participants() {
		m.index[p.ID()] = b
	}
	m.battles = append(m.battles, b)
}

// discard cleans up a battle that was never admitted.
func (m *BattleManager) discard(b *Battle, attacker, target Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, attacker.ID())
	delete(m.reserved, target.ID())
	m.cleanupLocked(b)
}

// cleanupLocked resets every remaining member to standing, clears their
// conditions, and unindexes them. Caller must hold m.mu.
func (m *BattleManager) cleanupLocked(b *Battle) {
	for _, p := range b.close() {
		p.SetPlayState(Standing)
		p.ClearConditions()
		if cur, ok := m.index[p.ID()]; ok && cur == b {
			delete(m.index, p.ID())
		}
	}
}

// Join adds p to the battle target is already in, attacking target.
// p acts from the next round.
//
// Postcondition: Returns ErrAlreadyEngaged if p is in a battle, or
// ErrNotInBattle if target is not.
func (m *BattleManager) Join(p, target Participant) (*Battle, error) {
	if p.ID() == target.ID() {
		return nil, ErrSelfTarget
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[p.ID()]; ok {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrAlreadyEngaged)
	}
	if _, ok := m.reserved[p.ID()]; ok {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrAlreadyEngaged)
	}
	b, ok := m.index[target.ID()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", target.Name(), ErrNotInBattle)
	}
	b.Add(p)
	if err := b.SetAttacking(p, target); err != nil {
		b.Remove(p)
		return nil, err
	}
	p.SetPlayState(Fighting)
	m.index[p.ID()] = b
	m.logger.Debug("participant joined battle",
		zap.String("battle", b.ID()),
		zap.String("participant", p.ID()),
		zap.String("target", target.ID()),
	)
	return b, nil
}

// Withdraw removes p from its battle, interrupting any pending invocation,
// and returns it to standing with no conditions. The battle is retired on the
// next round if over.
func (m *BattleManager) Withdraw(p Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.index[p.ID()]
	if !ok {
		return ErrNotInBattle
	}
	b.Remove(p)
	delete(m.index, p.ID())
	p.SetPlayState(Standing)
	p.ClearConditions()
	m.logger.Debug("participant withdrew",
		zap.String("battle", b.ID()),
		zap.String("participant", p.ID()),
	)
	return nil
}

// Round advances the global tick and resolves one round of every admitted
// battle. A battle whose round panics is skipped for this tick without
// affecting the others. Finished battles are removed and cleaned up.
func (m *BattleManager) Round() {
	tick := m.tick.Add(1)
	ctx, span := m.tracer.Start(context.Background(), "battle.tick",
		trace.WithAttributes(attribute.Int64("tick", int64(tick))))
	defer span.End()

	m.mu.Lock()
	snapshot := make([]*Battle, len(m.battles))
	copy(snapshot, m.battles)
	m.mu.Unlock()

	var finished []*Battle
	for _, b := range snapshot {
		if m.resolve(ctx, b, tick) {
			finished = append(finished, b)
		}
	}
	span.SetAttributes(
		attribute.Int("battles", len(snapshot)),
		attribute.Int("retired", len(finished)),
	)
	if len(finished) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range finished {
		for i, cur := range m.battles {
			if cur == b {
				m.battles = append(m.battles[:i], m.battles[i+1:]...)
				break
			}
		}
		m.cleanupLocked(b)
		m.logger.Info("battle retired", zap.String("battle", b.ID()), zap.Uint64("tick", tick))
	}
}

// resolve runs b's round and reports whether b is over.
func (m *BattleManager) resolve(ctx context.Context, b *Battle, tick uint64) (over bool) {
	_, span := m.tracer.Start(ctx, "battle.round",
		trace.WithAttributes(attribute.String("battle.id", b.ID())))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("battle round panicked",
				zap.String("battle", b.ID()),
				zap.Uint64("tick", tick),
				zap.Any("panic", r),
			)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			over = false
		}
	}()

	events := b.Round(tick)
	span.SetAttributes(attribute.Int("events", len(events)))
	m.logEvents(b, events)
	return b.IsOver()
}

func (m *BattleManager) logEvents(b *Battle, events []Event) {
	for _, ev := range events {
		fields := []zap.Field{
			zap.String("battle", b.ID()),
			zap.String("kind", string(ev.Kind)),
			zap.String("actor", ev.ActorID),
		}
		if ev.TargetID != "" {
			fields = append(fields, zap.String("target", ev.TargetID), zap.Int("target_health", ev.TargetHealth))
		}
		if ev.Damage > 0 {
			fields = append(fields, zap.Int("damage", ev.Damage))
		}
		if ev.Ability != "" {
			fields = append(fields, zap.String("ability", ev.Ability), zap.String("state", string(ev.State)))
		}
		if ev.Err != nil {
			fields = append(fields, zap.Error(ev.Err))
		}
		if ev.Condition != "" {
			fields = append(fields, zap.String("condition", ev.Condition))
		}
		m.logger.Debug("battle event", fields...)
	}
}
