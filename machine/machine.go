package machine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"bitbox/analysis"
	"bitbox/config"
	"bitbox/engine"
	"bitbox/library"
	"bitbox/lifecycle"
	"bitbox/playback"
	"bitbox/player"
	"bitbox/wakelock"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/afero"
)

const (
	appName       = "bitbox"
	wakeLockLabel = "Playing music"
	volumeStep    = 0.5
	seekStep      = 10
)

// Machine represents the main application state
type Machine struct {
	config        *config.Config
	output        *playback.Context
	engine        *engine.Decoder
	loader        *library.Loader
	player        *player.Controller
	guard         *lifecycle.Guard
	signalMonitor *SignalMonitor
	display       *Display
	logger        *slog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	errorChan     chan error

	volMu  sync.Mutex
	volume float64
	muted  bool
}

// New creates a new Machine instance
func New(cfg *config.Config) *Machine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Machine{
		config:    cfg,
		logger:    slog.With("component", "machine"),
		ctx:       ctx,
		cancel:    cancel,
		errorChan: make(chan error, 10),
		volume:    cfg.Audio.Volume,
	}
}

// Initialize sets up the machine components
func (m *Machine) Initialize() error {
	m.logger.Info("Initializing machine...")

	device, err := playback.NewDevice(m.config.Audio.Backend)
	if err != nil {
		return fmt.Errorf("failed to create audio device: %w", err)
	}
	m.output = playback.NewContext(device, beep.SampleRate(m.config.Audio.SampleRate), m.config.Audio.BufferSize, m.config.Audio.Volume)

	m.engine = engine.NewDecoder(afero.NewMemMapFs(), engine.NewArena(2, m.config.Audio.BlockSize))
	m.loader = library.NewLoader(m.engine, m.config.Library.Extensions, engine.ReferenceRate)

	m.player = player.NewController(m.engine, m.output, m.loader, player.Options{
		LoopCount:      m.config.Playback.LoopCount,
		BlockSize:      m.config.Audio.BlockSize,
		BatchCount:     m.config.Audio.BatchCount,
		LowWaterBlocks: m.config.Audio.LowWaterBlocks,
		RearmWindow:    m.config.Playback.RearmWindow,
		AdvanceDelay:   m.config.Playback.AdvanceDelay,
		SettleDelay:    m.config.Playback.SettleDelay,
		Analysis: analysis.Options{
			FFTSize:     m.config.Analysis.FFTSize,
			Smoothing:   m.config.Analysis.Smoothing,
			MinDecibels: m.config.Analysis.MinDecibels,
			MaxDecibels: m.config.Analysis.MaxDecibels,
		},
		AnalysisInterval: m.config.Analysis.Interval,
	})
	if err := m.player.Init(); err != nil {
		return fmt.Errorf("failed to initialize player: %w", err)
	}

	var locker wakelock.Locker = wakelock.Nop{}
	if m.config.WakeLock.Enabled {
		locker = wakelock.NewScreenSaver(appName, wakeLockLabel)
	}
	m.guard = lifecycle.NewGuard(m.player, locker)
	m.player.OnStateChange(func(s player.State) {
		m.logger.Debug("Playback state changed", slog.String("state", s.String()))
		m.guard.PlaybackChanged(s)
	})

	m.signalMonitor = NewSignalMonitor(m.guard, &m.wg)

	m.logger.Info("Machine initialized successfully",
		slog.String("backend", m.config.Audio.Backend),
		slog.Int("sample_rate", m.config.Audio.SampleRate))
	return nil
}

// Player returns the playback controller
func (m *Machine) Player() *player.Controller {
	return m.player
}

// Load replaces the playlist with the tracks found at source
func (m *Machine) Load(ctx context.Context, source string, onProgress library.ProgressFunc) ([]library.Track, error) {
	tracks, err := m.player.LoadPlaylist(ctx, source, onProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}
	m.logger.Info("Playlist loaded", slog.String("source", source), slog.Int("tracks", len(tracks)))
	return tracks, nil
}

// Start begins all machine operations
func (m *Machine) Start() error {
	m.logger.Info("Starting machine operations...")

	m.signalMonitor.SetContext(m.ctx)
	m.signalMonitor.Start()

	m.logger.Info("Machine started successfully")
	return nil
}

// StartInteractive starts the machine with keyboard control on in and a
// status line on out.
func (m *Machine) StartInteractive(in *os.File, out io.Writer) error {
	if err := m.Start(); err != nil {
		return err
	}

	m.display = NewDisplay(m.player, out, m.config.Analysis.Interval*4, &m.wg)
	m.display.Start(m.ctx)

	keyboard := NewKeyboard(in, m.Dispatch)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := keyboard.Run(m.ctx); err != nil {
			m.report(fmt.Errorf("keyboard: %w", err))
		}
	}()
	return nil
}

// Dispatch runs a single user command
func (m *Machine) Dispatch(cmd Command) {
	var err error
	switch cmd.Action {
	case ActionToggle:
		err = m.player.TogglePlayback()
	case ActionNext:
		err = m.player.Next()
	case ActionPrevious:
		err = m.player.Previous()
	case ActionStop:
		m.player.Stop()
	case ActionSeek:
		err = m.player.Seek(float64(m.player.Elapsed() + cmd.Arg))
	case ActionPlay:
		err = m.player.Play(cmd.Arg)
	case ActionVolume:
		m.adjustVolume(float64(cmd.Arg) * volumeStep)
	case ActionMute:
		m.toggleMute()
	case ActionQuit:
		m.Quit()
	}
	if err != nil {
		m.logger.Warn("Command failed", slog.String("action", cmd.Action.String()), slog.Any("error", err))
	}
}

func (m *Machine) adjustVolume(delta float64) {
	m.volMu.Lock()
	defer m.volMu.Unlock()
	m.volume += delta
	m.muted = false
	m.output.SetVolume(m.volume)
	m.logger.Debug("Volume changed", slog.Float64("volume", m.volume))
}

func (m *Machine) toggleMute() {
	m.volMu.Lock()
	defer m.volMu.Unlock()
	m.muted = !m.muted
	m.output.Mute(m.muted)
}

// Quit asks the machine to shut down
func (m *Machine) Quit() {
	m.cancel()
}

// Stop gracefully shuts down the machine
func (m *Machine) Stop() error {
	m.logger.Info("Stopping machine...")

	// Cancel context to stop all operations
	m.cancel()

	if m.signalMonitor != nil {
		m.signalMonitor.Stop()
	}

	// Wait for all goroutines to finish
	m.wg.Wait()

	if m.display != nil {
		m.display.Clear()
	}
	if m.player != nil {
		m.player.Shutdown()
	}
	if m.guard != nil {
		m.guard.Close()
	}
	if m.output != nil {
		if err := m.output.Close(); err != nil {
			return fmt.Errorf("failed to close audio output: %w", err)
		}
	}

	m.logger.Info("Machine stopped")
	return nil
}

// Wait blocks until the machine is stopped
func (m *Machine) Wait() error {
	select {
	case <-m.ctx.Done():
		return nil
	case err := <-m.errorChan:
		return err
	}
}

// Done is closed once the machine has been asked to stop
func (m *Machine) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Error returns the error channel for monitoring errors
func (m *Machine) Error() <-chan error {
	return m.errorChan
}

func (m *Machine) report(err error) {
	m.logger.Error("Machine error", slog.Any("error", err))
	select {
	case m.errorChan <- err:
	default:
	}
}
