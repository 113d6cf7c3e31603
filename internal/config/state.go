package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// State is what the host remembers between runs.
type State struct {
	// LastBuild is the host build of the previous run.
	LastBuild uint32 `toml:"last_build"`
}

// LoadState reads the state file. A missing file yields a zero State.
func LoadState(path string) (State, error) {
	var s State
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return State{}, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return s, nil
}

// SaveState writes the state file through a temporary file.
func SaveState(path string, s State) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, path)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
