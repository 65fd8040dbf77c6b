package machine

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"bitbox/lifecycle"
)

// VisibilitySink receives visibility changes.
type VisibilitySink interface {
	SetVisibility(v lifecycle.Visibility)
}

// SignalMonitor translates process signals into visibility changes.
// SIGUSR1 hides the player, SIGUSR2 and SIGCONT show it again.
type SignalMonitor struct {
	logger      *slog.Logger
	sink        VisibilitySink
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	signals     chan os.Signal
	stopChannel chan struct{}
	stopOnce    sync.Once
}

// NewSignalMonitor creates a new SignalMonitor instance
func NewSignalMonitor(sink VisibilitySink, wg *sync.WaitGroup) *SignalMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &SignalMonitor{
		logger:      slog.With("component", "signal-monitor"),
		sink:        sink,
		ctx:         ctx,
		cancel:      cancel,
		wg:          wg,
		signals:     make(chan os.Signal, 4),
		stopChannel: make(chan struct{}),
	}
}

// Start begins listening for visibility signals
func (s *SignalMonitor) Start() {
	signal.Notify(s.signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCONT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(s.signals)

		s.logger.Debug("Starting visibility monitoring")

		for {
			select {
			case sig := <-s.signals:
				v := lifecycle.Visible
				if sig == syscall.SIGUSR1 {
					v = lifecycle.Hidden
				}
				s.logger.Debug("Visibility signal", slog.String("signal", sig.String()))
				s.sink.SetVisibility(v)
			case <-s.ctx.Done():
				s.logger.Debug("Visibility monitoring stopped")
				return
			case <-s.stopChannel:
				s.logger.Debug("Visibility monitoring stopped via stop channel")
				return
			}
		}
	}()
}

// Stop stops visibility monitoring
func (s *SignalMonitor) Stop() {
	s.cancel()
	s.stopOnce.Do(func() { close(s.stopChannel) })
}

// SetContext updates the context for cancellation
func (s *SignalMonitor) SetContext(ctx context.Context) {
	s.cancel() // Cancel the old context
	s.ctx, s.cancel = context.WithCancel(ctx)
}
