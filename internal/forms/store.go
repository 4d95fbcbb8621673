package forms

import (
	"context"
	"sort"
	"sync"
)

// Store maps an intent to its form. GetFormFromIntent returns nil, nil for
// intents that have nothing to fill.
type Store interface {
	GetFormFromIntent(ctx context.Context, intent string) (*Form, error)
}

// MemoryStore serves forms loaded from the domain registry.
type MemoryStore struct {
	mu    sync.RWMutex
	forms map[string]*Form
}

// NewMemoryStore validates every form up front.
func NewMemoryStore(list []*Form) (*MemoryStore, error) {
	s := &MemoryStore{forms: make(map[string]*Form, len(list))}
	for _, f := range list {
		if err := s.Put(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) Put(f *Form) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.forms[f.Intent] = f.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetFormFromIntent(_ context.Context, intent string) (*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.forms[intent]; ok {
		return f.Clone(), nil
	}
	return nil, nil
}

// Intents lists the intents that have a form, sorted.
func (s *MemoryStore) Intents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.forms))
	for intent := range s.forms {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}
