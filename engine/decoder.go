package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/spf13/afero"
)

// ReferenceRate is the sample rate TrackLengthDirect reports lengths in.
const ReferenceRate = 44100

// resampleQuality is the beep resampler quality used when a track's native
// rate differs from the output rate.
const resampleQuality = 4

var (
	ErrUnsupportedFormat = errors.New("engine: unsupported track format")
	ErrNoTrack           = errors.New("engine: no track open")
)

// Decoder is a synthesis engine backed by beep's format decoders. Tracks are
// read from the engine's own file namespace, so callers must write a track
// into FS() before opening it. Only one track is open at a time.
type Decoder struct {
	mu     sync.Mutex
	fs     afero.Fs
	mem    *Arena
	rate   beep.SampleRate
	loops  int
	logger *slog.Logger

	path    string
	file    afero.File
	src     beep.StreamSeekCloser
	format  beep.Format
	stream  beep.Streamer
	title   string
	pass    int
	playing bool
	ended   bool
	scratch [][2]float64
}

// NewDecoder creates an engine over fs whose sample memory is mem.
func NewDecoder(fs afero.Fs, mem *Arena) *Decoder {
	return &Decoder{
		fs:     fs,
		mem:    mem,
		rate:   ReferenceRate,
		loops:  1,
		logger: slog.With("component", "engine"),
	}
}

// FS returns the engine's addressable file namespace.
func (d *Decoder) FS() afero.Fs {
	return d.fs
}

// Memory returns the arena FillBuffer writes into.
func (d *Decoder) Memory() *Arena {
	return d.mem
}

// SetSampleRate sets the output sample rate.
func (d *Decoder) SetSampleRate(rate int) error {
	if rate <= 0 {
		return fmt.Errorf("engine: invalid sample rate %d", rate)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.rate = beep.SampleRate(rate)
	if d.src != nil {
		return d.rebuild()
	}
	return nil
}

// SetLoopCount sets how many times a track is played before it reports ended.
func (d *Decoder) SetLoopCount(n int) error {
	if n < 1 {
		return fmt.Errorf("engine: invalid loop count %d", n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loops = n
	return nil
}

// Open opens the track at path, closing any track already open.
func (d *Decoder) Open(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeLocked()

	f, err := d.fs.Open(path)
	if err != nil {
		return fmt.Errorf("engine: open %s: %w", path, err)
	}

	d.title = readTitle(f, path)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("engine: rewind %s: %w", path, err)
	}

	src, format, err := decode(path, f)
	if err != nil {
		f.Close()
		return err
	}

	d.path = path
	d.file = f
	d.src = src
	d.format = format
	d.pass = 0
	d.playing = false
	d.ended = false
	if err := d.rebuild(); err != nil {
		d.closeLocked()
		return err
	}

	d.logger.Debug("Track opened",
		slog.String("path", path),
		slog.Int("native_rate", int(format.SampleRate)),
		slog.Int("samples", src.Len()))
	return nil
}

// Close closes the open track. Closing with no track open is a no-op.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *Decoder) closeLocked() {
	if d.src != nil {
		if err := d.src.Close(); err != nil {
			d.logger.Debug("Failed to close decoder", slog.Any("error", err))
		}
	}
	if d.file != nil {
		d.file.Close()
	}
	d.path = ""
	d.file = nil
	d.src = nil
	d.stream = nil
	d.title = ""
	d.playing = false
	d.ended = false
	d.pass = 0
}

// Play starts rendering the open track.
func (d *Decoder) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return ErrNoTrack
	}
	d.playing = true
	return nil
}

// Stop stops rendering and rewinds the open track.
func (d *Decoder) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return nil
	}
	d.playing = false
	d.ended = false
	d.pass = 0
	return d.seekSource(0)
}

// Ended reports whether the open track has played its configured loop count.
func (d *Decoder) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}

// Seek moves playback to samplePos, expressed at the output sample rate.
func (d *Decoder) Seek(samplePos int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return ErrNoTrack
	}
	pos := d.format.SampleRate.N(d.rate.D(int(max(samplePos, 0))))
	pos = min(pos, d.src.Len())
	d.ended = false
	return d.seekSource(pos)
}

// FillBuffer renders count stereo samples into the left and right regions.
// Once the track has ended, or while it is stopped, silence is written.
func (d *Decoder) FillBuffer(left, right Region, count int) error {
	l, err := d.mem.View(left, count)
	if err != nil {
		return err
	}
	r, err := d.mem.View(right, count)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil || !d.playing {
		clear(l)
		clear(r)
		return nil
	}
	d.render(l, r)
	return nil
}

func (d *Decoder) render(left, right []float32) {
	n := len(left)
	if cap(d.scratch) < n {
		d.scratch = make([][2]float64, n)
	}
	buf := d.scratch[:n]

	filled := 0
	for filled < n && !d.ended {
		got, ok := d.stream.Stream(buf[filled:])
		filled += got
		if ok && got > 0 {
			continue
		}
		d.pass++
		if d.pass >= d.loops {
			d.ended = true
			break
		}
		if err := d.seekSource(0); err != nil {
			d.logger.Warn("Failed to loop track", slog.String("path", d.path), slog.Any("error", err))
			d.ended = true
		}
	}

	for i := 0; i < filled; i++ {
		left[i] = float32(buf[i][0])
		right[i] = float32(buf[i][1])
	}
	clear(left[filled:])
	clear(right[filled:])
}

// seekSource positions the decoder at a native-rate sample and rebuilds the
// resampling stage so no stale interpolation state leaks across the jump.
func (d *Decoder) seekSource(pos int) error {
	if err := d.src.Seek(pos); err != nil {
		return fmt.Errorf("engine: seek %s: %w", d.path, err)
	}
	return d.rebuild()
}

func (d *Decoder) rebuild() error {
	if d.format.SampleRate == d.rate {
		d.stream = d.src
		return nil
	}
	d.stream = beep.Resample(resampleQuality, d.format.SampleRate, d.rate, d.src)
	return nil
}

// ShowTitle returns the open track's metadata as pipe-delimited label/value pairs.
func (d *Decoder) ShowTitle() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return "", ErrNoTrack
	}
	return d.title, nil
}

// TrackLengthDirect returns the length of the track at path in samples at
// ReferenceRate, without disturbing the open track.
func (d *Decoder) TrackLengthDirect(path string) (int64, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("engine: open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dec, err := gomp3.NewDecoder(f)
		if err != nil {
			return 0, fmt.Errorf("engine: probe %s: %w", path, err)
		}
		// go-mp3 always decodes to 16-bit stereo: 4 bytes per sample frame.
		frames := dec.Length() / 4
		return frames * ReferenceRate / int64(dec.SampleRate()), nil
	}

	src, format, err := decode(path, f)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return int64(src.Len()) * ReferenceRate / int64(format.SampleRate), nil
}

func decode(path string, f afero.File) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		src    beep.StreamSeekCloser
		format beep.Format
		err    error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		src, format, err = mp3.Decode(f)
	case ".wav":
		src, format, err = wav.Decode(f)
	case ".flac":
		src, format, err = flac.Decode(f)
	case ".ogg":
		src, format, err = vorbis.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("engine: decode %s: %w", path, err)
	}
	return src, format, nil
}

// readTitle builds the TITLE|||..|||GAME|||..|||SYSTEM|||..|||ARTIST|||.. string.
// Files without readable tags still get the labels, with empty values.
func readTitle(r io.ReadSeeker, path string) string {
	system := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	var title, game, artist string

	switch system {
	case "MP3", "FLAC", "OGG":
		if m, err := tag.ReadFrom(r); err == nil {
			title = m.Title()
			game = m.Album()
			artist = m.Artist()
		}
	}

	return FormatTitle(title, game, system, artist)
}

// FormatTitle joins metadata fields in the engine's title wire format.
func FormatTitle(title, game, system, artist string) string {
	return strings.Join([]string{
		"TITLE", title,
		"GAME", game,
		"SYSTEM", system,
		"ARTIST", artist,
	}, TitleSeparator)
}

// TitleSeparator delimits labels and values in ShowTitle strings.
const TitleSeparator = "|||"
