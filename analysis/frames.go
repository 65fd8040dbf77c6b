package analysis

import (
	"context"
	"iter"
	"math"
	"sync"
	"time"
)

// Bins is the number of bars in a Frame.
const Bins = 16

// Frame is a coarse spectrum, one 0-255 magnitude per bar.
type Frame [Bins]uint8

// Source is anything that can report a byte frequency spectrum.
type Source interface {
	FrequencyBinCount() int
	ByteFrequencyData(dst []uint8) error
}

// Downsample averages freq into bins contiguous ranges of equal width,
// rounding to the nearest integer. Ranges past the end of freq count as zero.
func Downsample(freq []uint8, bins int) Frame {
	var out Frame
	bins = min(bins, Bins)
	binSize := max(1, len(freq)/max(bins, 1))

	for i := range bins {
		sum := 0
		for j := range binSize {
			if idx := i*binSize + j; idx < len(freq) {
				sum += int(freq[idx])
			}
		}
		out[i] = uint8(math.Round(float64(sum) / float64(binSize)))
	}
	return out
}

// Frames yields a downsampled frame from src on every tick until ctx is
// done or ticks is closed. Ticks where src cannot be read are skipped.
func Frames(ctx context.Context, src Source, ticks <-chan time.Time) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		buf := make([]uint8, src.FrequencyBinCount())
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
			}

			if err := src.ByteFrequencyData(buf); err != nil {
				continue
			}
			if !yield(Downsample(buf, Bins)) {
				return
			}
		}
	}
}

// Loop samples a source periodically and keeps the latest frame.
// At most one source is sampled at a time.
type Loop struct {
	interval time.Duration

	mu     sync.Mutex
	frame  Frame
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped loop sampling every interval.
func NewLoop(interval time.Duration) *Loop {
	return &Loop{interval: interval}
}

// Start begins sampling src, stopping any previous run first.
func (l *Loop) Start(src Source) {
	l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for f := range Frames(ctx, src, ticker.C) {
			l.mu.Lock()
			l.frame = f
			l.mu.Unlock()
		}
	}()
}

// Stop halts sampling and waits for the sampler to exit. The last frame is kept.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a sampler is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Frame returns the most recent frame.
func (l *Loop) Frame() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame
}
