// Package store provides crash-safe persistence for shared state records.
//
// The control tree is read and written by independent processes (the
// interactive watch UI, one-shot CLI invocations, monitored subprocesses),
// so every write goes through temp-file-plus-atomic-rename and every record
// carries its write timestamp. Readers get an explicit staleness flag
// instead of silently treating old data as fresh, and a record that fails
// to decode is reported as corrupt, never as a crash.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Common errors.
var (
	ErrNotFound = errors.New("state record not found")
	ErrCorrupt  = errors.New("state record corrupt")
)

// Meta describes the freshness of a record returned by Read.
type Meta struct {
	// WrittenAt is the timestamp recorded by the writer.
	WrittenAt time.Time

	// Age is now minus WrittenAt at read time.
	Age time.Duration

	// Stale is true when Age exceeds the store's staleness threshold.
	// Stale is advisory: the data is still returned, and callers render
	// a "may be outdated" indicator rather than discarding it.
	Stale bool
}

// Store reads and writes keyed state records under the control tree.
// The zero value is not usable; construct with New.
type Store struct {
	staleAfter time.Duration

	// now is stubbed in tests to exercise staleness boundaries.
	now func() time.Time
}

// New creates a Store that flags records older than staleAfter as stale.
func New(staleAfter time.Duration) *Store {
	return &Store{staleAfter: staleAfter, now: time.Now}
}

// jsonEnvelope wraps a JSON payload with its write timestamp.
type jsonEnvelope struct {
	WrittenAt time.Time       `json:"written_at"`
	Data      json.RawMessage `json:"data"`
}

// yamlEnvelope wraps a YAML payload with its write timestamp.
type yamlEnvelope struct {
	WrittenAt time.Time `yaml:"written_at"`
	Data      yaml.Node `yaml:"data"`
}

// Write serializes v and atomically replaces the record at path.
// The codec is chosen by extension: .yaml/.yml records are YAML,
// everything else is JSON. Parent directories are created as needed.
//
// A whole-record overwrite like this is self-contained and needs no lock;
// callers doing read-modify-write sequences wrap them in WithLock.
func (s *Store) Write(path string, v any) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = marshalYAMLEnvelope(s.now().UTC(), v)
	} else {
		data, err = marshalJSONEnvelope(s.now().UTC(), v)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return atomicWriteFile(path, data, 0644)
}

// Read decodes the record at path into out and reports its freshness.
//
// Returns ErrNotFound when no record exists, and ErrCorrupt when the file
// cannot be decoded. On corruption the offending file is preserved next to
// the original as <name>.corrupted for diagnosis, so a subsequent Write
// starts from a clean slate. Staleness is never an error: callers check
// Meta.Stale.
func (s *Store) Read(path string, out any) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return Meta{}, err
	}

	var writtenAt time.Time
	if isYAML(path) {
		writtenAt, err = unmarshalYAMLEnvelope(data, out)
	} else {
		writtenAt, err = unmarshalJSONEnvelope(data, out)
	}
	if err != nil {
		s.preserveCorrupt(path)
		return Meta{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}

	age := s.now().UTC().Sub(writtenAt)
	return Meta{
		WrittenAt: writtenAt,
		Age:       age,
		Stale:     s.staleAfter > 0 && age > s.staleAfter,
	}, nil
}

// WithLock runs fn while holding an advisory exclusive lock scoped to path.
// Used for read-modify-write sequences that must not interleave, such as
// appending to the agent session list. The lock file lives next to the
// record so independent processes contend on the same lock.
func (s *Store) WithLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	fileLock := flock.New(path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = fileLock.Unlock() }()
	return fn()
}

// preserveCorrupt renames a corrupt record aside for diagnosis.
// Best effort: a failed rename leaves the corrupt file in place, where the
// next Write will overwrite it anyway.
func (s *Store) preserveCorrupt(path string) {
	_ = os.Rename(path, path+".corrupted")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func marshalJSONEnvelope(writtenAt time.Time, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(jsonEnvelope{WrittenAt: writtenAt, Data: payload}, "", "  ")
}

func unmarshalJSONEnvelope(data []byte, out any) (time.Time, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, err
	}
	if env.WrittenAt.IsZero() || len(env.Data) == 0 {
		return time.Time{}, errors.New("missing envelope fields")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return time.Time{}, err
	}
	return env.WrittenAt, nil
}

func marshalYAMLEnvelope(writtenAt time.Time, v any) ([]byte, error) {
	// yaml.Node round-trips the payload without an intermediate map.
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	return yaml.Marshal(yamlEnvelope{WrittenAt: writtenAt, Data: node})
}

func unmarshalYAMLEnvelope(data []byte, out any) (time.Time, error) {
	var env yamlEnvelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return time.Time{}, err
	}
	if env.WrittenAt.IsZero() || env.Data.Kind == 0 {
		return time.Time{}, errors.New("missing envelope fields")
	}
	if err := env.Data.Decode(out); err != nil {
		return time.Time{}, err
	}
	return env.WrittenAt, nil
}

// atomicWriteFile writes data to a file atomically: a unique temp file in
// the target directory, flushed to durable storage, then renamed over the
// destination. A concurrent reader sees either the fully-old or fully-new
// content, never a torn write. The rename is atomic on POSIX systems.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// The "*" in the pattern is replaced with a random suffix by
	// os.CreateTemp, preventing concurrent writers from colliding on the
	// same temp file.
	f, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	// CreateTemp uses 0600 by default.
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
