package library

import (
	"fmt"
	"strings"
)

// Track is one playable entry of a playlist. Tracks are immutable once loaded.
type Track struct {
	Path            string // location in the engine's file namespace
	Name            string
	Length          int // seconds
	LengthFormatted string
	Title           string // raw engine metadata string
}

// Metadata is the display information of the current track.
type Metadata struct {
	Title  string
	Game   string
	System string
	Author string
	Length string
}

// MetadataSeparator delimits labels and values in raw metadata strings.
const MetadataSeparator = "|||"

// ParseTitle extracts metadata from a LABEL|||value|||LABEL|||value string.
// Values are read positionally from the odd segments; labels are ignored.
func ParseTitle(raw string) Metadata {
	parts := strings.Split(raw, MetadataSeparator)
	value := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return Metadata{
		Title:  value(1),
		Game:   value(3),
		System: value(5),
		Author: value(7),
	}
}

// Info returns the track's display metadata, falling back to the track name
// when the engine reported no title.
func (t Track) Info() Metadata {
	m := ParseTitle(t.Title)
	if m.Title == "" {
		m.Title = t.Name
	}
	m.Length = t.LengthFormatted
	return m
}

// FormatLength renders seconds as MM:SS.
func FormatLength(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", (seconds/60)%60, seconds%60)
}
