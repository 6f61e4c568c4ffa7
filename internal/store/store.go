// Package store is the durable local key-value snapshot store for a
// client installation: device fingerprint, cached profile and cached
// room list live here.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// Well-known keys.
const (
	KeyProfile = "profile"
	KeyRooms   = "rooms"
)

// Store wraps a pebble database holding small string and JSON values.
type Store struct {
	db *pebble.DB
}

// Open creates or opens the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	val, closer, err := s.db.Get([]byte(key))
	if err != nil {
		return "", false
	}
	defer closer.Close()
	return string(val), true
}

// Set durably writes key=value.
func (s *Store) Set(key, value string) error {
	return s.db.Set([]byte(key), []byte(value), pebble.Sync)
}

// Delete removes key if present.
func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

// SetJSON stores v marshalled as JSON under key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, string(data))
}

// GetJSON unmarshals the value under key into v, reporting presence.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	data, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(data), v)
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
