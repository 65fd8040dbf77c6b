package playback

import (
	"errors"

	"github.com/gopxl/beep/v2"
)

var (
	ErrClosed         = errors.New("playback: context is closed")
	ErrUnknownBackend = errors.New("playback: unknown backend")
)

// State is the lifecycle state of an output context.
type State int

const (
	StateClosed State = iota
	StateRunning
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return "closed"
	}
}

// Device is an audio sink that pulls samples from a single streamer.
type Device interface {
	// Init opens the device at sampleRate with a buffer of bufferSize samples.
	Init(sampleRate beep.SampleRate, bufferSize int) error

	// Play replaces the streamer the device pulls from.
	Play(s beep.Streamer)

	// Clear detaches the streamer.
	Clear()

	// Suspend stops pulling samples until Resume.
	Suspend() error
	Resume() error

	// Close releases the device. A closed device may be initialised again.
	Close() error
}

// Block is one chunk of non-interleaved stereo samples. Left and Right have
// equal length.
type Block struct {
	Left  []float32
	Right []float32
}

// Len returns the number of stereo samples in the block.
func (b Block) Len() int {
	return min(len(b.Left), len(b.Right))
}
