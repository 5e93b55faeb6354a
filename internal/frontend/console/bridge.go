package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bestm80eva/Solace/internal/game/session"
)

// Handler executes one line of input on behalf of a character and reports
// whether the character asked to leave.
type Handler interface {
	Handle(uid, line string) bool
}

// Bridge connects a Conn to one player character: typed lines go to the
// Handler, and messages pushed to the character are written back.
type Bridge struct {
	conn    *Conn
	player  *session.Character
	handler Handler
	logger  *zap.Logger
}

// NewBridge creates a Bridge.
//
// Precondition: all arguments must be non-nil.
func NewBridge(conn *Conn, player *session.Character, handler Handler, logger *zap.Logger) *Bridge {
	return &Bridge{
		conn:    conn,
		player:  player,
		handler: handler,
		logger:  logger,
	}
}

// Run blocks until the player quits, input ends, or ctx is cancelled.
//
// Postcondition: Returns nil on quit or end of input, ctx.Err() on
// cancellation, or a wrapped error if reading fails. Every message pushed to
// the character before the handler saw quit has been written.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.forwardEvents(ctx)
	}()

	_ = b.conn.WritePrompt(b.prompt())
	err := b.commandLoop(ctx)

	cancel()
	wg.Wait()
	b.flush()
	return err
}

type readResult struct {
	line string
	err  error
}

// commandLoop hands each input line to the handler. Lines are read on a
// separate goroutine so that cancellation does not wait on the terminal.
func (b *Bridge) commandLoop(ctx context.Context) error {
	lines := make(chan readResult)
	go func() {
		for {
			line, err := b.conn.ReadLine()
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var r readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-lines:
		}

		if line := strings.TrimSpace(r.line); line != "" {
			if b.handler.Handle(b.player.ID(), line) {
				b.logger.Info("player quit", zap.String("player", b.player.ID()))
				return nil
			}
		} else if r.err == nil {
			_ = b.conn.WritePrompt(b.prompt())
		}

		if errors.Is(r.err, io.EOF) {
			b.logger.Info("console input closed", zap.String("player", b.player.ID()))
			return nil
		}
		if r.err != nil {
			return fmt.Errorf("reading input: %w", r.err)
		}
	}
}

// forwardEvents writes each character message followed by a fresh prompt.
func (b *Bridge) forwardEvents(ctx context.Context) {
	events := b.player.Entity().Events()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := b.conn.WriteLine(Style(msg)); err != nil {
				b.logger.Warn("console write failed", zap.Error(err))
				return
			}
			_ = b.conn.WritePrompt(b.prompt())
		}
	}
}

// flush writes messages still buffered after the forwarder stopped.
func (b *Bridge) flush() {
	events := b.player.Entity().Events()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			_ = b.conn.WriteLine(Style(msg))
		default:
			return
		}
	}
}

func (b *Bridge) prompt() string {
	return Colorf(BrightCyan, "[%s %d/%d]> ", b.player.Name(), b.player.Health(), b.player.MaxHealth())
}

// Style colors a character message by what it reports.
func Style(msg string) string {
	switch {
	case strings.HasPrefix(msg, "You have been slain"), strings.HasSuffix(msg, " is dead!"):
		return Colorize(Bold+BrightRed, msg)
	case strings.Contains(msg, " you for "):
		return Colorize(Red, msg)
	case strings.HasPrefix(msg, "You cannot"), strings.HasPrefix(msg, "Unknown command"):
		return Colorize(Yellow, msg)
	case strings.HasPrefix(msg, "Your ") && strings.Contains(msg, " damage."):
		return Colorize(Green, msg)
	default:
		return msg
	}
}
