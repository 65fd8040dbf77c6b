// Package analysis computes the coarse frequency spectrum shown while a
// track plays.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/gopxl/beep/v2"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrNotWarm is returned until the analyser has captured a full window.
var ErrNotWarm = errors.New("analysis: not enough samples captured")

// Options configures an Analyser.
type Options struct {
	FFTSize     int
	Smoothing   float64 // time constant in [0, 1)
	MinDecibels float64
	MaxDecibels float64
}

// DefaultOptions matches a 256-point analyser with 0.8 smoothing.
var DefaultOptions = Options{
	FFTSize:     256,
	Smoothing:   0.8,
	MinDecibels: -100,
	MaxDecibels: -30,
}

// Analyser is a pass-through streamer that captures a mono mix of the audio
// flowing through it and exposes its magnitude spectrum.
type Analyser struct {
	s    beep.Streamer
	opts Options

	mu       sync.Mutex
	ring     []float64
	pos      int
	captured int

	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

var _ beep.Streamer = (*Analyser)(nil)

// NewAnalyser wraps s. FFTSize must be a power of two of at least 32.
func NewAnalyser(s beep.Streamer, opts Options) (*Analyser, error) {
	if opts.FFTSize < 32 || opts.FFTSize&(opts.FFTSize-1) != 0 {
		return nil, fmt.Errorf("analysis: fft size %d is not a power of two >= 32", opts.FFTSize)
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("analysis: smoothing %v out of range [0, 1)", opts.Smoothing)
	}
	if opts.MinDecibels >= opts.MaxDecibels {
		return nil, fmt.Errorf("analysis: min decibels %v must be below max %v", opts.MinDecibels, opts.MaxDecibels)
	}

	return &Analyser{
		s:        s,
		opts:     opts,
		ring:     make([]float64, opts.FFTSize),
		fft:      fourier.NewFFT(opts.FFTSize),
		frame:    make([]float64, opts.FFTSize),
		coeffs:   make([]complex128, opts.FFTSize/2+1),
		smoothed: make([]float64, opts.FFTSize/2),
	}, nil
}

// Stream passes audio through while capturing it into the ring buffer.
func (a *Analyser) Stream(samples [][2]float64) (int, bool) {
	n, ok := a.s.Stream(samples)

	a.mu.Lock()
	size := len(a.ring)
	for i := range n {
		a.ring[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % size
	}
	a.captured = min(a.captured+n, size)
	a.mu.Unlock()

	return n, ok
}

func (a *Analyser) Err() error {
	return a.s.Err()
}

// FrequencyBinCount returns the number of values ByteFrequencyData writes.
func (a *Analyser) FrequencyBinCount() int {
	return a.opts.FFTSize / 2
}

// ByteFrequencyData writes the current smoothed spectrum into dst, one byte
// per bin scaled linearly between MinDecibels and MaxDecibels. dst may be
// shorter than FrequencyBinCount.
func (a *Analyser) ByteFrequencyData(dst []uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(a.ring)
	if a.captured < size {
		return ErrNotWarm
	}

	// Oldest sample first
	for i := range size {
		a.frame[i] = a.ring[(a.pos+i)%size]
	}
	window.Blackman(a.frame)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.opts.Smoothing
	scale := 255 / (a.opts.MaxDecibels - a.opts.MinDecibels)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / float64(size)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		if k >= len(dst) {
			continue
		}

		db := 20 * math.Log10(a.smoothed[k])
		v := math.Floor(scale * (db - a.opts.MinDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = uint8(v)
		}
	}
	return nil
}
