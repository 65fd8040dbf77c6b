package library

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"

	"github.com/spf13/afero"
)

// Engine is the part of the synthesis engine the loader needs to register and
// probe tracks.
type Engine interface {
	FS() afero.Fs
	Open(path string) error
	Close() error
	ShowTitle() (string, error)
	TrackLengthDirect(path string) (int64, error)
}

// ProgressFunc receives load progress as a percentage and a status message.
type ProgressFunc func(percent int, message string)

// Loader turns a zip source into a playlist registered with the engine.
type Loader struct {
	engine      Engine
	extensions  []string
	referenceHz int
	fetch       func(ctx context.Context, source string) ([]byte, error)
	logger      *slog.Logger
}

// NewLoader creates a loader that accepts entries with the given extensions.
// Track lengths reported by the engine are taken to be at referenceHz.
func NewLoader(engine Engine, extensions []string, referenceHz int) *Loader {
	return &Loader{
		engine:      engine,
		extensions:  extensions,
		referenceHz: referenceHz,
		fetch:       Fetch,
		logger:      slog.With("component", "library"),
	}
}

// Load fetches and unpacks source, writes each supported entry into the
// engine's file namespace and returns the tracks that could be probed.
// Files from a previous load are removed first. Entries that fail are logged
// and skipped. When the source itself cannot be loaded, progress ends at 100
// with a failure message and the error is returned with an empty playlist.
func (l *Loader) Load(ctx context.Context, source string, onProgress ProgressFunc) ([]Track, error) {
	report := func(percent int, message string) {
		if onProgress != nil {
			onProgress(percent, message)
		}
	}

	l.purge()

	report(10, "DOWNLOADING...")
	data, err := l.fetch(ctx, source)
	if err != nil {
		return l.fail(report, fmt.Errorf("fetch %s: %w", source, err))
	}

	report(40, "EXTRACTING TRACKS...")
	archive, err := OpenArchive(source, data, l.extensions)
	if err != nil {
		return l.fail(report, err)
	}

	var entries []string
	for _, name := range archive.Entries() {
		if hasExtension(name, l.extensions) {
			entries = append(entries, name)
		}
	}

	tracks := make([]Track, 0, len(entries))
	total := len(entries)
	for i, name := range entries {
		if err := ctx.Err(); err != nil {
			return l.fail(report, err)
		}

		percent := 40 + int(math.Round(float64(i)/float64(total)*55))
		report(percent, fmt.Sprintf("LOADING TRACK %d/%d...", i+1, total))

		track, err := l.ingest(archive, name)
		if err != nil {
			l.logger.Warn("Skipping track", slog.String("path", name), slog.Any("error", err))
			continue
		}
		tracks = append(tracks, track)
	}

	l.logger.Info("Playlist loaded",
		slog.String("source", source),
		slog.Int("tracks", len(tracks)),
		slog.Int("skipped", total-len(tracks)))
	report(100, "DONE")
	return tracks, nil
}

func (l *Loader) fail(report ProgressFunc, err error) ([]Track, error) {
	l.logger.Error("Failed to load playlist", slog.Any("error", err))
	report(100, "FAILED")
	return []Track{}, err
}

func (l *Loader) ingest(archive Archive, name string) (Track, error) {
	data, err := archive.Extract(name)
	if err != nil {
		return Track{}, &ExtractionError{Path: name, Err: err}
	}

	fs := l.engine.FS()
	target := path.Join("/", SafePath(name))
	_ = fs.Remove(target)
	if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
		return Track{}, &ExtractionError{Path: name, Err: err}
	}

	samples, err := l.engine.TrackLengthDirect(target)
	if err != nil {
		_ = fs.Remove(target)
		return Track{}, &ExtractionError{Path: name, Err: err}
	}
	seconds := int(math.Round(float64(samples) / float64(l.referenceHz)))

	track := Track{
		Path:            target,
		Name:            DisplayName(name),
		Length:          seconds,
		LengthFormatted: FormatLength(seconds),
		Title:           l.probeTitle(target),
	}
	if m := ParseTitle(track.Title); m.Title != "" {
		track.Name = m.Title
	}
	return track, nil
}

// probeTitle briefly opens the track to read its metadata. Failures leave the
// title empty.
func (l *Loader) probeTitle(target string) string {
	if err := l.engine.Open(target); err != nil {
		l.logger.Debug("Failed to open track for metadata", slog.String("path", target), slog.Any("error", err))
		return ""
	}
	defer func() {
		if err := l.engine.Close(); err != nil {
			l.logger.Debug("Failed to close track", slog.String("path", target), slog.Any("error", err))
		}
	}()

	title, err := l.engine.ShowTitle()
	if err != nil {
		l.logger.Debug("Failed to read title", slog.String("path", target), slog.Any("error", err))
		return ""
	}
	return title
}

// purge removes supported files left in the engine namespace by a previous load.
func (l *Loader) purge() {
	fs := l.engine.FS()
	infos, err := afero.ReadDir(fs, "/")
	if err != nil {
		return
	}
	for _, info := range infos {
		if info.IsDir() || !hasExtension(info.Name(), l.extensions) {
			continue
		}
		if err := fs.Remove(path.Join("/", info.Name())); err != nil {
			l.logger.Debug("Failed to remove stale track", slog.String("name", info.Name()), slog.Any("error", err))
		}
	}
}
