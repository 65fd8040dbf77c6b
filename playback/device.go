package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// NewDevice returns the device for a configured backend name.
func NewDevice(backend string) (Device, error) {
	switch backend {
	case "speaker":
		return &SpeakerDevice{}, nil
	case "oto":
		return &OtoDevice{}, nil
	case "null":
		return &NullDevice{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// SpeakerDevice plays through beep's speaker package.
// The speaker can only be initialised once per process, so Close suspends it
// and a later Init at the same rate reuses it.
type SpeakerDevice struct {
	mu          sync.Mutex
	initialized bool
	rate        beep.SampleRate
}

func (d *SpeakerDevice) Init(sampleRate beep.SampleRate, bufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		if sampleRate != d.rate {
			return fmt.Errorf("speaker already initialized at %d Hz", d.rate)
		}
		return speaker.Resume()
	}

	if err := speaker.Init(sampleRate, bufferSize); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	d.initialized = true
	d.rate = sampleRate
	return nil
}

func (d *SpeakerDevice) Play(s beep.Streamer) {
	speaker.Play(s)
}

func (d *SpeakerDevice) Clear() {
	speaker.Clear()
}

func (d *SpeakerDevice) Suspend() error {
	return speaker.Suspend()
}

func (d *SpeakerDevice) Resume() error {
	return speaker.Resume()
}

func (d *SpeakerDevice) Close() error {
	speaker.Clear()
	return speaker.Suspend()
}

// OtoDevice drives an oto context directly with 32-bit float stereo frames.
// Like the speaker, the oto context lives for the rest of the process.
type OtoDevice struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	rate   beep.SampleRate
	source beep.Streamer
	buf    [][2]float64
}

func (d *OtoDevice) Init(sampleRate beep.SampleRate, bufferSize int) error {
	d.mu.Lock()
	if d.ctx != nil {
		rate := d.rate
		d.mu.Unlock()
		if sampleRate != rate {
			return fmt.Errorf("oto context already created at %d Hz", rate)
		}
		return d.ctx.Resume()
	}
	d.mu.Unlock()

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   sampleRate.D(bufferSize),
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	d.mu.Lock()
	d.ctx = ctx
	d.rate = sampleRate
	d.player = ctx.NewPlayer(d)
	d.mu.Unlock()

	d.player.Play()
	return nil
}

// Read implements io.Reader for the oto player.
func (d *OtoDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frames := len(p) / 8
	if d.source == nil || frames == 0 {
		clear(p)
		return len(p), nil
	}

	if cap(d.buf) < frames {
		d.buf = make([][2]float64, frames)
	}
	buf := d.buf[:frames]
	n, ok := d.source.Stream(buf)
	if !ok {
		d.source = nil
	}
	clear(buf[n:])

	for i, frame := range buf {
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(float32(frame[0])))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(float32(frame[1])))
	}
	clear(p[frames*8:])
	return len(p), nil
}

func (d *OtoDevice) Play(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = s
}

func (d *OtoDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = nil
}

func (d *OtoDevice) Suspend() error {
	if d.ctx == nil {
		return nil
	}
	return d.ctx.Suspend()
}

func (d *OtoDevice) Resume() error {
	if d.ctx == nil {
		return nil
	}
	return d.ctx.Resume()
}

func (d *OtoDevice) Close() error {
	d.Clear()
	return d.Suspend()
}

// NullDevice discards audio, pulling it at real-time pace so the rest of the
// pipeline behaves as it would with hardware attached.
type NullDevice struct {
	mu     sync.Mutex
	source beep.Streamer
	stop   chan struct{}
	paused bool
}

func (d *NullDevice) Init(sampleRate beep.SampleRate, bufferSize int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		return nil
	}
	d.stop = make(chan struct{})
	d.paused = false

	const tick = 10 * time.Millisecond
	go d.drain(d.stop, tick, sampleRate.N(tick))
	return nil
}

func (d *NullDevice) drain(stop chan struct{}, tick time.Duration, perTick int) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	buf := make([][2]float64, perTick)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.source != nil && !d.paused {
				if _, ok := d.source.Stream(buf); !ok {
					d.source = nil
				}
			}
			d.mu.Unlock()
		}
	}
}

func (d *NullDevice) Play(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = s
}

func (d *NullDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = nil
}

func (d *NullDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	return nil
}

func (d *NullDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	return nil
}

func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.source = nil
	return nil
}
