package library

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SafePath turns an archive entry path into a flat engine file name: accents
// are stripped and every character outside [a-zA-Z0-9._-] becomes '_'.
func SafePath(name string) string {
	// Decompose and remove diacritics so "é" keeps its base letter
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
	)
	normalized, _, err := transform.String(t, name)
	if err != nil {
		normalized = name
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, normalized)
}

var leadingTrackNumber = regexp.MustCompile(`^\d+\s*`)

// DisplayName derives a track name from an archive entry path: the directory,
// extension and leading track number are dropped.
func DisplayName(entry string) string {
	base := path.Base(entry)
	base = strings.TrimSuffix(base, path.Ext(base))
	return leadingTrackNumber.ReplaceAllString(base, "")
}
