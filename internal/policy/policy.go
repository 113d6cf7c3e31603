// Package policy persists the per-addon load policy: which addons load at
// startup and the user's per-addon preferences. The document is a JSON array
// rewritten in full on every save.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Entry is the persisted policy of a single addon.
type Entry struct {
	Name                  string `json:"Name"`
	Signature             uint32 `json:"Signature"`
	IsLoaded              bool   `json:"IsLoaded"`
	IsPausingUpdates      bool   `json:"IsPausingUpdates"`
	IsDisabledUntilUpdate bool   `json:"IsDisabledUntilUpdate"`
	AllowPrereleases      bool   `json:"AllowPrereleases"`
	IsFavorite            bool   `json:"IsFavorite"`
}

// ErrInvalidDocument is returned when the policy file cannot be decoded.
var ErrInvalidDocument = errors.New("invalid load policy document")

// File stores policy entries in a JSON file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load reads every entry. A missing file yields no entries and no error.
// Entries with a zero signature are dropped.
func (f *File) Load() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read load policy: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raw []Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, f.path, err)
	}

	out := raw[:0]
	for _, e := range raw {
		if e.Signature != 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

// Save replaces the document with entries, in the given order.
func (f *File) Save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "\t")
	if err != nil {
		return fmt.Errorf("encode load policy: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp policy file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write load policy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write load policy: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace load policy: %w", err)
	}
	return nil
}

// Memory is an in-process store. It is used when a command-line override
// pins the session and for tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	saves   int
}

// NewMemory returns a store seeded with entries.
func NewMemory(entries ...Entry) *Memory {
	return &Memory{entries: entries}
}

// Load returns a copy of the stored entries.
func (m *Memory) Load() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Save replaces the stored entries.
func (m *Memory) Save(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make([]Entry, len(entries))
	copy(m.entries, entries)
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Find returns the entry with signature sig.
func Find(entries []Entry, sig uint32) (Entry, bool) {
	for _, e := range entries {
		if e.Signature == sig {
			return e, true
		}
	}
	return Entry{}, false
}
