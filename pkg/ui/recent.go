package ui

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MaxRecentAddresses bounds the recent address list.
const MaxRecentAddresses = 10

// RecentAddress is a focus address that was viewed before.
type RecentAddress struct {
	Address  string    `json:"address"`
	LastUsed time.Time `json:"last_used"`
}

// RecentStore remembers the last viewed focus addresses, newest first, so
// the address prompt can offer them again.
type RecentStore struct {
	mu      sync.Mutex
	path    string
	entries []RecentAddress
	dirty   bool // Has unsaved changes
}

// RecentPath returns the default location of the recent address file.
func RecentPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "refnet", "recent.json")
}

// OpenRecent loads the store at path. A missing file gives an empty store;
// a corrupt one is reported and replaced on the next Save.
func OpenRecent(path string) (*RecentStore, error) {
	s := &RecentStore{path: path}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.entries = nil
		return s, err
	}
	return s, nil
}

// Add moves address to the front of the list.
func (s *RecentStore) Add(address string) {
	address = strings.TrimSpace(address)
	if address == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []RecentAddress{{Address: address, LastUsed: time.Now()}}
	for _, e := range s.entries {
		if !strings.EqualFold(e.Address, address) {
			entries = append(entries, e)
		}
	}
	if len(entries) > MaxRecentAddresses {
		entries = entries[:MaxRecentAddresses]
	}
	s.entries = entries
	s.dirty = true
}

// List returns the stored addresses, newest first.
func (s *RecentStore) List() []RecentAddress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecentAddress(nil), s.entries...)
}

// Save writes the list if it changed.
func (s *RecentStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	s.dirty = false
	return nil
}
