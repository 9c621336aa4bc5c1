package digest

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store used in tests.
type MemoryStore struct {
	mu       sync.Mutex
	windows  map[string]*Window
	events   map[string][]map[string]any
	activity map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:  make(map[string]*Window),
		events:   make(map[string][]map[string]any),
		activity: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Open(_ context.Context, window *Window, event map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.windows[window.ID]; open {
		return false, nil
	}

	copied := *window
	s.windows[window.ID] = &copied
	s.events[window.ID] = []map[string]any{event}

	return true, nil
}

func (s *MemoryStore) Append(_ context.Context, windowID string, event map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.windows[windowID]; !open {
		return 0, ErrWindowNotFound
	}

	s.events[windowID] = append(s.events[windowID], event)

	return len(s.events[windowID]), nil
}

func (s *MemoryStore) Close(_ context.Context, windowID string) (*ClosedWindow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	window, open := s.windows[windowID]
	if !open {
		return nil, false, nil
	}

	closed := &ClosedWindow{Window: *window, Events: s.events[windowID]}

	delete(s.windows, windowID)
	delete(s.events, windowID)

	return closed, true, nil
}

func (s *MemoryStore) Due(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string

	for id, window := range s.windows {
		if !window.ClosesAt.After(now) {
			due = append(due, id)
		}
	}

	return due, nil
}

func (s *MemoryStore) LastEventAt(_ context.Context, scope string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.activity[scope]

	return at, ok, nil
}

func (s *MemoryStore) Touch(_ context.Context, scope string, at time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity[scope] = at

	return nil
}
