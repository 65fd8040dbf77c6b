package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// Context is the audio output context. It owns the device and mixes every
// connected node into it. A context starts closed and is created lazily by
// Ensure.
type Context struct {
	mu         sync.Mutex
	device     Device
	sampleRate beep.SampleRate
	bufferSize int
	state      State

	// intent orders Resume and Suspend requests; an asynchronous request is
	// dropped once a newer one has been made.
	intent atomic.Uint64

	// mixMu guards the mixer and volume, which the device reads from its own
	// goroutine.
	mixMu  sync.Mutex
	mixer  *beep.Mixer
	volume *effects.Volume

	logger *slog.Logger
}

// NewContext creates a closed context for device. buffer is the device
// buffer length and volume is a base-2 exponent applied to the mix.
func NewContext(device Device, sampleRate beep.SampleRate, buffer time.Duration, volume float64) *Context {
	mixer := &beep.Mixer{}
	return &Context{
		device:     device,
		sampleRate: sampleRate,
		bufferSize: sampleRate.N(buffer),
		state:      StateClosed,
		mixer:      mixer,
		volume: &effects.Volume{
			Streamer: mixer,
			Base:     2,
			Volume:   volume,
		},
		logger: slog.With("component", "output"),
	}
}

// SampleRate returns the rate nodes must produce samples at.
func (c *Context) SampleRate() beep.SampleRate {
	return c.sampleRate
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ensure opens the device if the context is closed. A suspended or running
// context is left as it is.
func (c *Context) Ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		return nil
	}

	if err := c.device.Init(c.sampleRate, c.bufferSize); err != nil {
		return fmt.Errorf("init output: %w", err)
	}

	c.mixMu.Lock()
	c.mixer.Clear()
	c.mixMu.Unlock()

	c.device.Play(beep.StreamerFunc(c.stream))
	c.state = StateRunning
	c.logger.Info("Output context created",
		slog.Int("sample_rate", int(c.sampleRate)),
		slog.Int("buffer_size", c.bufferSize))
	return nil
}

// stream feeds the device. It never reports exhaustion so the device keeps
// pulling while nothing is connected.
func (c *Context) stream(samples [][2]float64) (int, bool) {
	c.mixMu.Lock()
	defer c.mixMu.Unlock()

	n, _ := c.volume.Stream(samples)
	clear(samples[n:])
	return len(samples), true
}

// Resume resumes a suspended context.
func (c *Context) Resume() error {
	c.intent.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeLocked()
}

func (c *Context) resumeLocked() error {
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return nil
	}
	if err := c.device.Resume(); err != nil {
		return fmt.Errorf("resume output: %w", err)
	}
	c.state = StateRunning
	c.logger.Debug("Output context resumed")
	return nil
}

// ResumeAsync resumes the context without waiting. Failures are logged.
func (c *Context) ResumeAsync() {
	seq := c.intent.Add(1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.intent.Load() != seq || c.state == StateClosed {
			return
		}
		if err := c.resumeLocked(); err != nil {
			c.logger.Warn("Failed to resume output context", slog.Any("error", err))
		}
	}()
}

// Suspend pauses the device.
func (c *Context) Suspend() error {
	c.intent.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspendLocked()
}

func (c *Context) suspendLocked() error {
	if c.state != StateRunning {
		return nil
	}
	if err := c.device.Suspend(); err != nil {
		return fmt.Errorf("suspend output: %w", err)
	}
	c.state = StateSuspended
	c.logger.Debug("Output context suspended")
	return nil
}

// SuspendAsync suspends the context without waiting. Failures are logged.
func (c *Context) SuspendAsync() {
	seq := c.intent.Add(1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.intent.Load() != seq {
			return
		}
		if err := c.suspendLocked(); err != nil {
			c.logger.Warn("Failed to suspend output context", slog.Any("error", err))
		}
	}()
}

// Close disconnects every node and releases the device.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed

	c.device.Clear()
	c.mixMu.Lock()
	c.mixer.Clear()
	c.mixMu.Unlock()

	if err := c.device.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	c.logger.Info("Output context closed")
	return nil
}

// Connect adds s to the mix. It is removed again once it reports exhaustion.
func (c *Context) Connect(s beep.Streamer) error {
	c.mu.Lock()
	closed := c.state == StateClosed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.mixMu.Lock()
	defer c.mixMu.Unlock()
	c.mixer.Add(s)
	return nil
}

// SetVolume sets the mix volume as a base-2 exponent. Zero is unity gain.
func (c *Context) SetVolume(volume float64) {
	c.mixMu.Lock()
	defer c.mixMu.Unlock()
	c.volume.Volume = volume
	c.volume.Silent = false
}

// Mute silences the mix without dropping connected nodes.
func (c *Context) Mute(muted bool) {
	c.mixMu.Lock()
	defer c.mixMu.Unlock()
	c.volume.Silent = muted
}
