package ability

import (
	"fmt"
	"sort"
	"sync"
)

// ResourceKind names a pool an ability can draw from.
type ResourceKind string

const (
	Stamina ResourceKind = "stamina"
	Mana    ResourceKind = "mana"
)

// ResourceCost is an immutable (kind, amount) requirement paid at resolution.
type ResourceCost struct {
	Kind   ResourceKind `yaml:"kind"`
	Amount int          `yaml:"amount"`
}

// String returns "20 stamina".
func (c ResourceCost) String() string {
	return fmt.Sprintf("%d %s", c.Amount, c.Kind)
}

// Pool holds a participant's current and maximum resource values.
// All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	current map[ResourceKind]int
	max     map[ResourceKind]int
}

// NewPool creates an empty Pool.
func NewPool() *Pool {
	return &Pool{
		current: make(map[ResourceKind]int),
		max:     make(map[ResourceKind]int),
	}
}

// Define sets both the maximum and current value of kind.
//
// Precondition: max >= 0.
func (p *Pool) Define(kind ResourceKind, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max[kind] = max
	p.current[kind] = max
}

// Get returns the current value of kind; unknown kinds are 0.
func (p *Pool) Get(kind ResourceKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current[kind]
}

// Max returns the maximum value of kind.
func (p *Pool) Max(kind ResourceKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max[kind]
}

// Restore adds amount to kind, capped at its maximum.
func (p *Pool) Restore(kind ResourceKind, amount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.current[kind] + amount
	if v > p.max[kind] {
		v = p.max[kind]
	}
	p.current[kind] = v
}

// Spend deducts every cost or none of them. Costs of the same kind are summed
// before checking.
//
// Postcondition: on error (wrapping ErrInsufficientResources) the pool is unchanged.
func (p *Pool) Spend(costs ...ResourceCost) error {
	need := sumCosts(costs)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(need); err != nil {
		return err
	}
	for kind, amount := range need {
		p.current[kind] -= amount
	}
	return nil
}

// Affords reports whether Spend(costs...) would succeed right now.
func (p *Pool) Affords(costs ...ResourceCost) bool {
	need := sumCosts(costs)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkLocked(need) == nil
}

func sumCosts(costs []ResourceCost) map[ResourceKind]int {
	need := make(map[ResourceKind]int, len(costs))
	for _, c := range costs {
		need[c.Kind] += c.Amount
	}
	return need
}

// checkLocked reports the first shortfall in kind order. Caller must hold p.mu.
func (p *Pool) checkLocked(need map[ResourceKind]int) error {
	kinds := make([]string, 0, len(need))
	for k := range need {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		kind := ResourceKind(k)
		if have := p.current[kind]; have < need[kind] {
			return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientResources, need[kind], kind, have)
		}
	}
	return nil
}
