// Package player drives playlist playback: it opens tracks on the synthesis
// engine, pumps rendered blocks into the output and sequences track changes.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"bitbox/analysis"
	"bitbox/library"
	"bitbox/playback"
)

// State is the playback state of the controller.
type State int

const (
	StateIdle State = iota
	StateStopped
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Output is the audio output context the controller plays through.
type Output interface {
	SampleRate() beep.SampleRate
	State() playback.State
	Ensure() error
	Resume() error
	ResumeAsync()
	SuspendAsync()
	Connect(s beep.Streamer) error
}

// Loader produces a playlist from a source.
type Loader interface {
	Load(ctx context.Context, source string, onProgress library.ProgressFunc) ([]library.Track, error)
}

// Options configures a Controller.
type Options struct {
	LoopCount        int
	BlockSize        int
	BatchCount       int
	LowWaterBlocks   int
	RearmWindow      time.Duration
	AdvanceDelay     time.Duration
	SettleDelay      time.Duration
	Analysis         analysis.Options
	AnalysisInterval time.Duration

	// Clock defaults to the system clock.
	Clock Clock
}

// Controller is the playback state machine. All methods are safe for
// concurrent use.
type Controller struct {
	mu     sync.Mutex
	engine Engine
	output Output
	loader Loader
	pump   *Pump
	loop   *analysis.Loop
	clock  Clock
	opts   Options

	ready    bool
	loading  bool
	state    State
	notified State

	playlist []library.Track
	index    int
	current  *library.Track
	info     *library.Metadata

	// live session
	session  uint64
	open     bool
	node     *playback.Node
	tap      *analysis.Analyser
	anchor   time.Time
	pausedAt time.Duration

	pending    Timer
	pendingSeq uint64

	listeners []func(State)
	logger    *slog.Logger
}

// NewController creates an idle controller. Init must be called before any
// playlist can be played.
func NewController(eng Engine, out Output, loader Loader, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}

	c := &Controller{
		engine: eng,
		output: out,
		loader: loader,
		clock:  opts.Clock,
		opts:   opts,
		loop:   analysis.NewLoop(opts.AnalysisInterval),
		logger: slog.With("component", "player"),
	}
	c.pump = NewPump(eng, PumpOptions{
		BlockSize:    opts.BlockSize,
		BatchCount:   opts.BatchCount,
		RearmWindow:  opts.RearmWindow,
		AdvanceDelay: opts.AdvanceDelay,
	}, opts.Clock)
	c.pump.SetAdvanceHandler(c.autoAdvance)
	return c
}

// OnStateChange registers f to be called after every state transition.
func (c *Controller) OnStateChange(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, f)
}

// unlock releases the controller and notifies listeners of a state change.
func (c *Controller) unlock() {
	state := c.state
	var listeners []func(State)
	if state != c.notified {
		c.notified = state
		listeners = slices.Clone(c.listeners)
	}
	c.mu.Unlock()

	for _, f := range listeners {
		f(state)
	}
}

// Init configures the engine for the output sample rate and reserves the
// engine memory the pump renders into.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.unlock()

	if c.ready {
		return nil
	}

	if err := c.engine.SetSampleRate(int(c.output.SampleRate())); err != nil {
		return &EngineError{Op: "set sample rate", Err: err}
	}

	mem := c.engine.Memory()
	if mem.SlotLen() < c.opts.BlockSize {
		return fmt.Errorf("player: engine region of %d samples is smaller than block size %d", mem.SlotLen(), c.opts.BlockSize)
	}
	left, err := mem.Alloc()
	if err != nil {
		return &EngineError{Op: "alloc", Err: err}
	}
	right, err := mem.Alloc()
	if err != nil {
		mem.Free(left)
		return &EngineError{Op: "alloc", Err: err}
	}
	c.pump.SetRegions(left, right)

	c.ready = true
	c.logger.Info("Player initialized", slog.Int("sample_rate", int(c.output.SampleRate())))
	return nil
}

// Shutdown stops playback and releases the engine memory. The controller
// must be initialized again before further use.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.unlock()

	c.cancelPendingLocked()
	c.stopLocked()
	if left, right, ok := c.pump.ClearRegions(); ok {
		mem := c.engine.Memory()
		mem.Free(left)
		mem.Free(right)
	}
	c.ready = false
}

// LoadPlaylist replaces the playlist with the tracks loaded from source.
// Playback is stopped first. A failed load leaves an empty playlist.
func (c *Controller) LoadPlaylist(ctx context.Context, source string, onProgress library.ProgressFunc) ([]library.Track, error) {
	c.mu.Lock()
	if !c.ready {
		c.unlock()
		return nil, ErrNotReady
	}
	if c.loading {
		c.unlock()
		return nil, ErrLoading
	}
	c.loading = true
	c.cancelPendingLocked()
	c.stopLocked()
	if c.state != StateIdle {
		c.state = StateStopped
	}
	c.playlist = nil
	c.index = 0
	c.unlock()

	tracks, err := c.loader.Load(ctx, source, onProgress)

	c.mu.Lock()
	defer c.unlock()
	c.loading = false
	c.playlist = slices.Clone(tracks)
	c.index = 0
	return slices.Clone(tracks), err
}

// SetPlaylist replaces the playlist, stopping playback first.
func (c *Controller) SetPlaylist(tracks []library.Track) {
	c.mu.Lock()
	defer c.unlock()

	c.cancelPendingLocked()
	c.stopLocked()
	if c.state != StateIdle {
		c.state = StateStopped
	}
	c.playlist = slices.Clone(tracks)
	c.index = 0
}

// Play opens and starts the track at index, replacing any playing track.
func (c *Controller) Play(index int) error {
	c.mu.Lock()
	defer c.unlock()

	c.cancelPendingLocked()
	return c.playLocked(index)
}

// PlayCurrent plays the track at the current index.
func (c *Controller) PlayCurrent() error {
	c.mu.Lock()
	defer c.unlock()

	c.cancelPendingLocked()
	return c.playLocked(c.index)
}

func (c *Controller) playLocked(index int) error {
	switch {
	case !c.ready:
		return ErrNotReady
	case c.loading:
		return ErrLoading
	case len(c.playlist) == 0:
		return ErrEmptyPlaylist
	case index < 0 || index >= len(c.playlist):
		return fmt.Errorf("%w: %d of %d", ErrTrackIndex, index, len(c.playlist))
	}
	track := c.playlist[index]

	c.teardownLocked()

	if err := c.output.Ensure(); err != nil {
		c.endSessionLocked()
		c.logger.Error("Failed to create output", slog.Any("error", err))
		return &OutputError{Op: "create", Err: err}
	}
	c.output.ResumeAsync()

	node := playback.NewNode(c.opts.LowWaterBlocks * c.opts.BlockSize)
	tap, err := analysis.NewAnalyser(node, c.opts.Analysis)
	if err != nil {
		c.endSessionLocked()
		return err
	}
	if err := c.output.Connect(tap); err != nil {
		c.endSessionLocked()
		c.logger.Error("Failed to connect output", slog.Any("error", err))
		return &OutputError{Op: "connect", Err: err}
	}
	c.node = node
	c.tap = tap

	if err := c.engine.Open(track.Path); err != nil {
		return c.failLocked("open", err)
	}
	c.open = true
	if err := c.engine.SetLoopCount(c.opts.LoopCount); err != nil {
		return c.failLocked("set loop count", err)
	}
	if err := c.engine.Play(); err != nil {
		return c.failLocked("play", err)
	}

	c.session++
	node.OnNeedData(c.pump.Pump)
	c.pump.Attach(node, c.session)
	node.Start()
	c.pump.Pump()

	info := track.Info()
	c.index = index
	c.current = &track
	c.info = &info
	c.anchor = c.clock.Now()
	c.pausedAt = 0
	c.state = StatePlaying
	c.loop.Start(tap)

	c.logger.Info("Playing track",
		slog.Int("index", index),
		slog.String("name", track.Name),
		slog.String("length", track.LengthFormatted))
	return nil
}

// failLocked abandons a half-built session after an engine failure.
func (c *Controller) failLocked(op string, err error) error {
	c.logger.Error("Engine call failed", slog.String("op", op), slog.Any("error", err))
	c.teardownLocked()
	c.endSessionLocked()
	c.state = StateStopped
	return &EngineError{Op: op, Err: err}
}

// teardownLocked disconnects the output graph and closes the engine track.
func (c *Controller) teardownLocked() {
	c.pump.Detach()
	if c.node != nil {
		c.node.Stop()
		c.node = nil
	}
	c.tap = nil
	c.loop.Stop()

	if c.open {
		if err := c.engine.Stop(); err != nil {
			c.logger.Warn("Failed to stop engine", slog.Any("error", err))
		}
		if err := c.engine.Close(); err != nil {
			c.logger.Warn("Failed to close track", slog.Any("error", err))
		}
		c.open = false
	}
}

// endSessionLocked clears the current track. A controller that had a
// session falls back to stopped.
func (c *Controller) endSessionLocked() {
	c.current = nil
	c.info = nil
	c.pausedAt = 0
	if c.state != StateIdle {
		c.state = StateStopped
	}
}

func (c *Controller) stopLocked() {
	c.teardownLocked()
	c.endSessionLocked()
}

// Pause pauses output without closing the track.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.unlock()
	c.pauseLocked()
}

func (c *Controller) pauseLocked() {
	if c.state != StatePlaying {
		return
	}
	c.pausedAt = c.elapsedLocked()
	c.pump.SetActive(false)
	if c.node != nil {
		c.node.Pause()
	}
	c.loop.Stop()
	c.state = StatePaused
	c.logger.Debug("Paused", slog.Duration("position", c.pausedAt))
}

func (c *Controller) resumeLocked() {
	c.output.ResumeAsync()
	c.node.Resume()
	c.pump.SetActive(true)
	c.pump.Pump()
	c.anchor = c.clock.Now().Add(-c.pausedAt)
	c.state = StatePlaying
	c.loop.Start(c.tap)
	c.logger.Debug("Resumed", slog.Duration("position", c.pausedAt))
}

// Stop closes the current track and suspends the output.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()

	c.cancelPendingLocked()
	if c.state == StateIdle {
		return
	}
	c.stopLocked()
	c.state = StateStopped
	c.output.SuspendAsync()
}

// TogglePlayback pauses while playing, resumes a paused track from where it
// was paused and otherwise starts the first track.
func (c *Controller) TogglePlayback() error {
	c.mu.Lock()
	defer c.unlock()

	switch {
	case c.state == StatePlaying:
		c.pauseLocked()
		return nil
	case c.state == StatePaused && c.node != nil:
		c.resumeLocked()
		return nil
	case c.current != nil:
		c.cancelPendingLocked()
		return c.playLocked(c.index)
	}
	c.cancelPendingLocked()
	return c.playLocked(0)
}

// Next stops the current track and plays the following one after the
// settle delay, wrapping at the end of the playlist.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.unlock()

	if len(c.playlist) == 0 {
		return ErrEmptyPlaylist
	}
	c.skipLocked((c.index+1)%len(c.playlist), StateStopped)
	return nil
}

// Previous stops the current track and plays the preceding one after the
// settle delay, wrapping at the start of the playlist.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.unlock()

	n := len(c.playlist)
	if n == 0 {
		return ErrEmptyPlaylist
	}
	target := c.index - 1
	if c.index == 0 {
		target = n - 1
	}
	c.skipLocked(target, StateStopped)
	return nil
}

// autoAdvance runs when the pump's deferred advance fires. A session that is
// no longer live is ignored.
func (c *Controller) autoAdvance(session uint64) {
	c.mu.Lock()
	defer c.unlock()

	if session != c.session || c.state != StatePlaying || len(c.playlist) == 0 {
		return
	}
	c.logger.Info("Track finished", slog.Int("index", c.index))
	c.skipLocked((c.index+1)%len(c.playlist), StateEnded)
}

// skipLocked ends the session and schedules target to play once the old
// track has been released. The index moves to target immediately so repeated
// skips accumulate.
func (c *Controller) skipLocked(target int, state State) {
	c.cancelPendingLocked()
	c.stopLocked()
	c.state = state
	c.index = target

	c.pendingSeq++
	seq := c.pendingSeq
	c.pending = c.clock.AfterFunc(c.opts.SettleDelay, func() {
		c.mu.Lock()
		defer c.unlock()
		if seq != c.pendingSeq {
			return
		}
		c.pending = nil
		if err := c.playLocked(target); err != nil {
			c.logger.Error("Failed to play track", slog.Int("index", target), slog.Any("error", err))
		}
	})
}

func (c *Controller) cancelPendingLocked() {
	c.pendingSeq++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// Seek moves the open track to seconds, clamped to the track length.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	defer c.unlock()

	if (c.state != StatePlaying && c.state != StatePaused) || !c.open || c.current == nil {
		return ErrNoSession
	}

	s := max(seconds, 0)
	if c.current.Length > 0 {
		s = min(s, float64(c.current.Length))
	}
	if math.IsNaN(s) {
		s = 0
	}

	pos := int64(math.Floor(s * float64(c.output.SampleRate())))
	if err := c.engine.Seek(pos); err != nil {
		return c.failLocked("seek", err)
	}

	offset := time.Duration(s * float64(time.Second))
	c.anchor = c.clock.Now().Add(-offset)
	if c.state == StatePaused {
		c.pausedAt = offset
	}
	c.logger.Debug("Seeked", slog.Float64("seconds", s))
	return nil
}

// ResumeAudioContext creates the output if needed and resumes it, waiting
// for the result.
func (c *Controller) ResumeAudioContext() error {
	if err := c.output.Ensure(); err != nil {
		return &OutputError{Op: "create", Err: err}
	}
	if err := c.output.Resume(); err != nil {
		return &OutputError{Op: "resume", Err: err}
	}
	return nil
}

// OutputState returns the state of the output context.
func (c *Controller) OutputState() playback.State {
	return c.output.State()
}

// Elapsed returns whole seconds played in the current track.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.elapsedLocked() / time.Second)
}

func (c *Controller) elapsedLocked() time.Duration {
	switch c.state {
	case StatePlaying:
		d := c.clock.Now().Sub(c.anchor)
		if c.current != nil && c.current.Length > 0 {
			d = min(d, time.Duration(c.current.Length)*time.Second)
		}
		return max(d, 0)
	case StatePaused:
		return c.pausedAt
	}
	return 0
}

func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Controller) IsPlaying() bool {
	return c.State() == StatePlaying
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTrack returns the open track, if any.
func (c *Controller) CurrentTrack() (library.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return library.Track{}, false
	}
	return *c.current, true
}

func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Playlist returns a copy of the playlist.
func (c *Controller) Playlist() []library.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.playlist)
}

// TrackInfo returns the metadata of the open track, if any.
func (c *Controller) TrackInfo() (library.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return library.Metadata{}, false
	}
	return *c.info, true
}

// Frequency returns the latest spectrum frame.
func (c *Controller) Frequency() analysis.Frame {
	return c.loop.Frame()
}
