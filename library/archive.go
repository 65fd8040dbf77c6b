package library

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var ErrUnknownArchive = errors.New("library: source is neither a zip archive nor a known track")

// Archive is an unpacked container of track files.
type Archive interface {
	// Entries lists the readable paths in the archive.
	Entries() []string

	// Extract returns the raw bytes of one entry.
	Extract(name string) ([]byte, error)
}

// ExtractionError reports a single archive entry that could not be ingested.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return "extract " + e.Path + ": " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// OpenArchive opens data fetched from source. Zip containers are unpacked;
// a bare track file whose extension is in exts becomes a one-entry archive.
func OpenArchive(source string, data []byte, exts []string) (Archive, error) {
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return OpenZip(data)
	}

	name := path.Base(source)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if hasExtension(name, exts) {
		return &singleFile{name: name, data: data}, nil
	}
	return nil, ErrUnknownArchive
}

type zipArchive struct {
	files map[string]*zip.File
	names []string
}

// OpenZip opens an in-memory zip archive.
func OpenZip(data []byte) (Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	a := &zipArchive{files: make(map[string]*zip.File, len(r.File))}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.files[f.Name] = f
		a.names = append(a.names, f.Name)
	}
	return a, nil
}

func (a *zipArchive) Entries() []string {
	return a.names
}

func (a *zipArchive) Extract(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("no entry %q", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// zip verifies the checksum when the entry is read to EOF
	return io.ReadAll(rc)
}

type singleFile struct {
	name string
	data []byte
}

func (s *singleFile) Entries() []string {
	return []string{s.name}
}

func (s *singleFile) Extract(name string) ([]byte, error) {
	if name != s.name {
		return nil, fmt.Errorf("no entry %q", name)
	}
	return s.data, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
