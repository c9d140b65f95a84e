package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const outputExt = ".mp3"

// SanitizeFilename keeps ASCII letters, digits, dash, underscore and dot.
// Whitespace becomes an underscore, anything else is dropped, and leading dots
// are trimmed so the result can never name a parent or hidden entry.
// Applying it to its own output is a no-op.
func SanitizeFilename(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, name)
	return strings.TrimLeft(mapped, ".")
}

// GenerateFilename derives a collision-resistant output filename from a title:
// sanitized prefix, random suffix, audio extension.
func GenerateFilename(title string) string {
	prefix := SanitizeFilename(title)
	if len(prefix) > TitlePrefixLength {
		prefix = prefix[:TitlePrefixLength]
	}
	prefix = strings.TrimRight(prefix, "._-")
	if prefix == "" {
		prefix = "audio"
	}
	return prefix + "_" + uuid.NewString() + outputExt
}

// FileStore is the flat directory holding produced audio files.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// ValidateName recomputes the generation-time sanitization and rejects any
// name it would change.
func ValidateName(name string) error {
	if name == "" || SanitizeFilename(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// Path returns the absolute location for a validated name.
func (s *FileStore) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Stat returns file info for a stored file.
func (s *FileStore) Stat(name string) (os.FileInfo, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return info, nil
}

// Open opens a stored file for reading. Callers close the returned file.
func (s *FileStore) Open(name string) (*os.File, os.FileInfo, error) {
	info, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, err
	}
	return f, info, nil
}

// Remove deletes a stored file.
func (s *FileStore) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return nil
}

// RemovePartials deletes every file named stem.* and returns the names
// removed. Conversions call it after a failure to drop intermediate and
// half-written output.
func (s *FileStore) RemovePartials(stem string) ([]string, error) {
	if err := ValidateName(stem); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, stem+".*"))
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed = append(removed, filepath.Base(path))
	}
	return removed, nil
}

// List returns the directory's file names, sorted. The listing is the only
// inventory of the store and is used for diagnostics.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Sweep removes audio files last modified before now-maxAge and returns
// their names. Partial downloads and other tool leftovers are left alone.
func (s *FileStore) Sweep(maxAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != outputExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, err
			}
			removed = append(removed, e.Name())
		}
	}
	return removed, nil
}
