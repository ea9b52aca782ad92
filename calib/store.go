// Package calib persists per-device calibration values between runs.
package calib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("calibration not found")

// Store keeps one YAML document per device key inside a directory.
type Store struct {
	mx  sync.Mutex
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir is ~/.config/nxtsensors or the working directory when the user
// config dir is unknown.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "nxtsensors"
	}
	return filepath.Join(dir, "nxtsensors")
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".yaml")
}

// Load decodes the calibration saved under key into v.
func (s *Store) Load(key string, v any) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("could not read calibration %s: %w", key, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode calibration %s: %w", key, err)
	}
	return nil
}

// Save replaces the calibration stored under key.
func (s *Store) Save(key string, v any) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode calibration %s: %w", key, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("could not create calibration dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create calibration file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write calibration %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write calibration %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("could not store calibration %s: %w", key, err)
	}
	return nil
}

// Delete removes the calibration stored under key; missing keys are ignored.
func (s *Store) Delete(key string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not delete calibration %s: %w", key, err)
	}
	return nil
}
