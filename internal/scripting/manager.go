package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/dice"
)

// ErrNotLoaded is returned when a hook is called before Load succeeds.
var ErrNotLoaded = errors.New("scripting: no scripts loaded")

// Manager owns one sandboxed LState holding every hook script.
//
// An LState is single-threaded, so all calls into the VM are serialized by mu.
type Manager struct {
	roller *dice.Roller
	logger *zap.Logger

	mu    sync.Mutex
	L     *lua.LState
	limit int
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a non-nil Manager.
func NewManager(roller *dice.Roller, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{roller: roller, logger: logger}
}

// Load creates a fresh sandboxed VM, registers the engine module, then
// executes every *.lua file in scriptDir in lexicographic order. A previously
// loaded VM is replaced only when every file loads.
//
// Precondition: scriptDir must be a readable directory; instLimit >= 0.
// Postcondition: Hooks defined by the scripts are callable; returns error on Lua load failure.
func (m *Manager) Load(scriptDir string, instLimit int) error {
	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)

	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	for _, path := range luaFiles {
		if err := L.DoFile(path); err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	cancel()
	L.RemoveContext()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
	}
	m.L = L
	m.limit = effectiveLimit(instLimit)
	m.logger.Info("scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// Has reports whether hook is a global function in the loaded VM.
func (m *Manager) Has(hook string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return false
	}
	return m.L.GetGlobal(hook).Type() == lua.LTFunction
}

// CallHook calls the named Lua global function with a fresh instruction budget.
//
// Precondition: args must be valid lua.LValue instances created by this Manager.
// Postcondition: Returns the first return value of the hook, or an error if
// nothing is loaded, the hook is undefined, or the script raised an error.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callLocked(hook, func(*lua.LState) []lua.LValue { return args })
}

// callLocked calls hook with arguments built against the live state.
// Caller must hold m.mu.
func (m *Manager) callLocked(hook string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	if m.L == nil {
		return lua.LNil, ErrNotLoaded
	}
	fn := m.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("scripting: hook %q is not defined", hook)
	}

	ctx, cancel := newCountingContext(m.limit)
	m.L.SetContext(ctx)
	defer func() {
		m.L.RemoveContext()
		cancel()
	}()

	if err := m.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, build(m.L)...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, fmt.Errorf("scripting: hook %q: %w", hook, err)
	}

	ret := m.L.Get(-1)
	m.L.Pop(1)
	return ret, nil
}

// Close releases the VM. Hooks bound before Close return ErrNotLoaded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}
