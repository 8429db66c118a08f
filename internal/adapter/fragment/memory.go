package fragment

import (
	"context"
	"sort"
	"sync"

	"conductor/internal/domain"
)

// MemoryStore keeps fragments in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	fragments map[domain.FragmentKind]map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fragments: make(map[domain.FragmentKind]map[string]string)}
}

// Put stores or replaces a fragment.
func (s *MemoryStore) Put(kind domain.FragmentKind, name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fragments[kind] == nil {
		s.fragments[kind] = make(map[string]string)
	}
	s.fragments[kind][name] = text
}

// Delete removes a fragment if present.
func (s *MemoryStore) Delete(kind domain.FragmentKind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fragments[kind], name)
}

func (s *MemoryStore) Fragment(_ context.Context, kind domain.FragmentKind, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.fragments[kind][name]
	if !ok {
		return "", &domain.FragmentError{Kind: kind, Name: name, Err: domain.ErrFragmentNotFound}
	}
	return text, nil
}

func (s *MemoryStore) List(_ context.Context, kind domain.FragmentKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fragments[kind]))
	for n := range s.fragments[kind] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
