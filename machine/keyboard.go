package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/term"
)

// Action is a user command bound to a key.
type Action int

const (
	ActionNone Action = iota
	ActionToggle
	ActionNext
	ActionPrevious
	ActionStop
	ActionSeek
	ActionPlay
	ActionVolume
	ActionMute
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionToggle:
		return "toggle"
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionStop:
		return "stop"
	case ActionSeek:
		return "seek"
	case ActionPlay:
		return "play"
	case ActionVolume:
		return "volume"
	case ActionMute:
		return "mute"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

// Command is an action with its argument: seconds for seek, a track index
// for play and steps for volume.
type Command struct {
	Action Action
	Arg    int
}

const (
	keyEsc    = 0x1b
	keyCtrlC  = 0x03
	keyEscSeq = '['
)

// ParseKey maps one read from a raw terminal to a command.
func ParseKey(buf []byte) Command {
	if len(buf) == 0 {
		return Command{}
	}

	if buf[0] == keyEsc {
		if len(buf) < 3 || buf[1] != keyEscSeq {
			return Command{}
		}
		switch buf[2] {
		case 'A':
			return Command{Action: ActionVolume, Arg: 1}
		case 'B':
			return Command{Action: ActionVolume, Arg: -1}
		case 'C':
			return Command{Action: ActionSeek, Arg: seekStep}
		case 'D':
			return Command{Action: ActionSeek, Arg: -seekStep}
		}
		return Command{}
	}

	b := buf[0]
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	switch {
	case b == ' ':
		return Command{Action: ActionToggle}
	case b == 'n':
		return Command{Action: ActionNext}
	case b == 'p':
		return Command{Action: ActionPrevious}
	case b == 's':
		return Command{Action: ActionStop}
	case b == 'm':
		return Command{Action: ActionMute}
	case b == '+' || b == '=':
		return Command{Action: ActionVolume, Arg: 1}
	case b == '-':
		return Command{Action: ActionVolume, Arg: -1}
	case b >= '1' && b <= '9':
		return Command{Action: ActionPlay, Arg: int(b - '1')}
	case b == 'q' || b == keyCtrlC:
		return Command{Action: ActionQuit}
	}
	return Command{}
}

// Keyboard reads keys from a terminal and dispatches their commands.
type Keyboard struct {
	in     *os.File
	handle func(Command)
	logger *slog.Logger
}

// NewKeyboard creates a keyboard reader for in.
func NewKeyboard(in *os.File, handle func(Command)) *Keyboard {
	return &Keyboard{
		in:     in,
		handle: handle,
		logger: slog.With("component", "keyboard"),
	}
}

// Run puts the terminal in raw mode and dispatches commands until ctx is
// done or input ends. The terminal is restored before Run returns.
func (k *Keyboard) Run(ctx context.Context) error {
	fd := int(k.in.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(fd, old)
	}

	keys := make(chan []byte)
	errs := make(chan error, 1)

	// Read cannot be interrupted, so this goroutine may outlive Run
	go func() {
		buf := make([]byte, 8)
		for {
			n, err := k.in.Read(buf)
			if err != nil {
				errs <- err
				return
			}
			select {
			case keys <- slices.Clone(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
	}()

	k.logger.Debug("Keyboard control started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				k.logger.Debug("Keyboard input closed")
				return nil
			}
			return err
		case key := <-keys:
			cmd := ParseKey(key)
			if cmd.Action == ActionNone {
				continue
			}
			k.logger.Debug("Key pressed", slog.String("action", cmd.Action.String()), slog.Int("arg", cmd.Arg))
			k.handle(cmd)
		}
	}
}
