// Package lifecycle reacts to environment changes that affect playback:
// visibility of the player and the display wake lock.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bitbox/playback"
	"bitbox/player"
	"bitbox/wakelock"
)

// Visibility is whether the player is in the foreground.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

func (v Visibility) String() string {
	if v == Hidden {
		return "hidden"
	}
	return "visible"
}

// Player is the part of the playback controller the guard drives.
type Player interface {
	State() player.State
	Pause()
	OutputState() playback.State
	ResumeAudioContext() error
}

// acquireTimeout bounds a single wake lock request.
const acquireTimeout = 2 * time.Second

// Guard pauses playback while hidden and holds the wake lock only while
// playing and visible. Wake lock failures are never reported to callers.
type Guard struct {
	player Player
	locker wakelock.Locker

	mu      sync.Mutex
	visible bool
	lock    wakelock.Lock

	logger *slog.Logger
}

// NewGuard creates a guard for a visible player.
func NewGuard(p Player, locker wakelock.Locker) *Guard {
	if locker == nil {
		locker = wakelock.Nop{}
	}
	return &Guard{
		player:  p,
		locker:  locker,
		visible: true,
		logger:  slog.With("component", "lifecycle"),
	}
}

// SetVisibility handles a visibility change. Hiding pauses a playing track;
// showing again does not resume it but wakes a suspended output.
func (g *Guard) SetVisibility(v Visibility) {
	g.mu.Lock()
	g.visible = v == Visible
	g.mu.Unlock()

	g.logger.Debug("Visibility changed", slog.String("visibility", v.String()))

	if v == Hidden {
		if g.player.State() == player.StatePlaying {
			g.player.Pause()
		}
		g.release()
		return
	}

	if g.player.State() == player.StatePlaying {
		g.acquire()
	}
	if g.player.OutputState() == playback.StateSuspended {
		if err := g.player.ResumeAudioContext(); err != nil {
			g.logger.Warn("Failed to resume output", slog.Any("error", err))
		}
	}
}

// PlaybackChanged updates the wake lock for a playback state transition.
func (g *Guard) PlaybackChanged(s player.State) {
	g.mu.Lock()
	visible := g.visible
	g.mu.Unlock()

	if s == player.StatePlaying && visible {
		g.acquire()
		return
	}
	g.release()
}

// Held reports whether the wake lock is currently held.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock != nil
}

// Close releases the wake lock.
func (g *Guard) Close() {
	g.release()
}

func (g *Guard) acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lock != nil || !g.visible {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
	defer cancel()

	lock, err := g.locker.Acquire(ctx)
	if err != nil {
		g.logger.Debug("Wake lock unavailable", slog.Any("error", err))
		return
	}
	g.lock = lock
	g.logger.Debug("Wake lock acquired")
}

func (g *Guard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lock == nil {
		return
	}
	if err := g.lock.Release(); err != nil {
		g.logger.Debug("Failed to release wake lock", slog.Any("error", err))
	}
	g.lock = nil
	g.logger.Debug("Wake lock released")
}
