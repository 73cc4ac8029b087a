package selection

import (
	"sort"
	"sync"
)

// Store is the set of order ids selected on the visible page.
type Store struct {
	mutex    sync.RWMutex
	selected map[string]struct{}
}

func NewStore() *Store {
	return &Store{selected: make(map[string]struct{})}
}

// Toggle flips membership of id.
func (s *Store) Toggle(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return
	}
	s.selected[id] = struct{}{}
}

// ToggleAll clears the selection when every visible id is already selected,
// and otherwise replaces it with exactly visibleIDs.
func (s *Store) ToggleAll(visibleIDs []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	allSelected := true
	for _, id := range visibleIDs {
		if _, ok := s.selected[id]; !ok {
			allSelected = false
			break
		}
	}

	s.selected = make(map[string]struct{}, len(visibleIDs))
	if allSelected {
		return
	}
	for _, id := range visibleIDs {
		s.selected[id] = struct{}{}
	}
}

// Covers reports whether every id in ids is selected. An empty ids is never covered.
func (s *Store) Covers(ids []string) bool {
	if len(ids) == 0 {
		return false
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, id := range ids {
		if _, ok := s.selected[id]; !ok {
			return false
		}
	}
	return true
}

func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.selected = make(map[string]struct{})
}

func (s *Store) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.selected)
}

func (s *Store) Has(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// IDs returns the selected ids in sorted order.
func (s *Store) IDs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
