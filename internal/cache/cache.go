package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// HostSet is a concurrent-safe, insertion-ordered set of hostnames known to
// be unavailable. It is persisted as a JSON array.
type HostSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
	order []string
}

// NewHostSet creates and returns a new HostSet holding hosts.
func NewHostSet(hosts ...string) *HostSet {
	s := &HostSet{
		items: make(map[string]struct{}, len(hosts)),
	}
	for _, h := range hosts {
		s.add(h)
	}
	return s
}

// LoadHostSet reads the JSON array at path. A missing file yields an empty set.
func LoadHostSet(path string) (*HostSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewHostSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bad-host memo: %w", err)
	}

	var hosts []string
	if err := json.Unmarshal(data, &hosts); err != nil {
		return nil, fmt.Errorf("decode bad-host memo %s: %w", path, err)
	}
	return NewHostSet(hosts...), nil
}

// Contains reports whether host is in the set.
func (s *HostSet) Contains(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.items[host]
	return found
}

// Add inserts host. It returns false if host was already present.
func (s *HostSet) Add(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(host)
}

func (s *HostSet) add(host string) bool {
	if _, found := s.items[host]; found {
		return false
	}
	s.items[host] = struct{}{}
	s.order = append(s.order, host)
	return true
}

// Len returns the number of hosts.
func (s *HostSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Hosts returns the hosts in insertion order.
func (s *HostSet) Hosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Save writes the set to path as a pretty-printed JSON array. The file is
// replaced atomically so an interrupted save never truncates the memo.
func (s *HostSet) Save(path string) error {
	hosts := s.Hosts()

	data, err := json.MarshalIndent(hosts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bad-host memo: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memo directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".badhosts-*.json")
	if err != nil {
		return fmt.Errorf("create temp memo: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp memo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp memo: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace bad-host memo: %w", err)
	}
	return nil
}
