package machine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"bitbox/analysis"
	"bitbox/library"
	"bitbox/player"
)

// Status is the player state shown on the status line.
type Status interface {
	State() player.State
	CurrentIndex() int
	Playlist() []library.Track
	TrackInfo() (library.Metadata, bool)
	Elapsed() int
	Frequency() analysis.Frame
}

// StatusLine is a snapshot of everything the status line shows.
type StatusLine struct {
	State   player.State
	Index   int
	Total   int
	Info    library.Metadata
	HasInfo bool
	Elapsed int
	Frame   analysis.Frame
}

var barLevels = []rune(" ▁▂▃▄▅▆▇█")

const clearLine = "\r\x1b[K"

// RenderStatus formats a single status line without a trailing newline.
func RenderStatus(s StatusLine) string {
	var b strings.Builder

	switch s.State {
	case player.StatePlaying:
		b.WriteString("▶ ")
	case player.StatePaused:
		b.WriteString("⏸ ")
	default:
		b.WriteString("■ ")
	}

	if !s.HasInfo {
		fmt.Fprintf(&b, "--/%02d no track", s.Total)
		return b.String()
	}

	fmt.Fprintf(&b, "%02d/%02d %s", s.Index+1, s.Total, s.Info.Title)
	if s.Info.Game != "" {
		b.WriteString(" - ")
		b.WriteString(s.Info.Game)
	}
	fmt.Fprintf(&b, " [%s/%s] ", library.FormatLength(s.Elapsed), s.Info.Length)

	for _, v := range s.Frame {
		b.WriteRune(barLevels[int(v)*(len(barLevels)-1)/255])
	}
	return b.String()
}

// Display redraws the status line periodically.
type Display struct {
	status   Status
	out      io.Writer
	interval time.Duration
	wg       *sync.WaitGroup

	mu   sync.Mutex
	last string
}

// NewDisplay creates a display writing to out every interval.
func NewDisplay(status Status, out io.Writer, interval time.Duration, wg *sync.WaitGroup) *Display {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Display{
		status:   status,
		out:      out,
		interval: interval,
		wg:       wg,
	}
}

// Start redraws until ctx is done.
func (d *Display) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.Refresh()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Snapshot reads the current status.
func (d *Display) Snapshot() StatusLine {
	info, ok := d.status.TrackInfo()
	return StatusLine{
		State:   d.status.State(),
		Index:   d.status.CurrentIndex(),
		Total:   len(d.status.Playlist()),
		Info:    info,
		HasInfo: ok,
		Elapsed: d.status.Elapsed(),
		Frame:   d.status.Frequency(),
	}
}

// Refresh redraws the line if it changed.
func (d *Display) Refresh() {
	line := RenderStatus(d.Snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()
	if line == d.last {
		return
	}
	d.last = line
	fmt.Fprint(d.out, clearLine+line)
}

// Clear erases the status line.
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	fmt.Fprint(d.out, clearLine)
}
