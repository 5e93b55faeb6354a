package gameserver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/command"
	"github.com/bestm80eva/Solace/internal/game/session"
)

// Dispatcher routes one line of player input to the CombatHandler and
// delivers the result to the player's entity.
type Dispatcher struct {
	commands *command.Registry
	combat   *CombatHandler
	sessions *session.Manager
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
//
// Precondition: all arguments must be non-nil.
func NewDispatcher(commands *command.Registry, combat *CombatHandler, sessions *session.Manager, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		commands: commands,
		combat:   combat,
		sessions: sessions,
		logger:   logger,
	}
}

// Handle executes line on behalf of uid. Every outcome, including errors,
// is pushed to the character as text.
//
// Postcondition: Returns true when the player asked to quit.
func (d *Dispatcher) Handle(uid, line string) bool {
	c, ok := d.sessions.Get(uid)
	if !ok {
		d.logger.Warn("command from unknown character", zap.String("uid", uid))
		return true
	}
	parsed := command.Parse(line)
	if parsed.Command == "" {
		return false
	}
	cmd, ok := d.commands.Resolve(parsed.Command)
	if !ok {
		c.SendMessage(fmt.Sprintf("Unknown command %q. Type help for a list.", parsed.Command))
		return false
	}
	if len(parsed.Args) < cmd.MinArgs {
		c.SendMessage("Usage: " + cmd.Usage)
		return false
	}

	var (
		lines []string
		err   error
	)
	switch cmd.Handler {
	case command.HandlerAttack:
		err = d.combat.Attack(uid, parsed.Rest(0))
	case command.HandlerUse:
		err = d.combat.Use(uid, parsed.Arg(0), parsed.Rest(1))
	case command.HandlerFlee:
		err = d.combat.Flee(uid)
	case command.HandlerAbilities:
		lines, err = d.combat.Abilities(uid)
	case command.HandlerStatus:
		lines, err = d.combat.Status(uid)
	case command.HandlerLook:
		lines, err = d.combat.Look(uid)
	case command.HandlerHelp:
		lines = d.commands.HelpLines()
	case command.HandlerQuit:
		c.SendMessage("Goodbye.")
		return true
	default:
		err = fmt.Errorf("no handler for %q", cmd.Handler)
	}

	for _, l := range lines {
		c.SendMessage(l)
	}
	if err != nil {
		d.report(c, cmd.Name, err)
	}
	return false
}

func (d *Dispatcher) report(c *session.Character, name string, err error) {
	d.logger.Debug("command failed",
		zap.String("character", c.ID()),
		zap.String("command", name),
		zap.Error(err),
	)
	var r reported
	if errors.As(err, &r) {
		return
	}
	c.SendMessage(playerMessage(err))
}
