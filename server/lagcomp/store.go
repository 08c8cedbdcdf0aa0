package lagcomp

import (
	"slices"
	"sync"
)

// Store is the session-level table of histories, indexed by entity id.
//
// Histories outlive their entities by a retention period so shots fired
// just before a despawn can still be reconciled. The simulation goroutine
// mutates the store; SamplesFor may be called from any goroutine.
type Store struct {
	mu        sync.RWMutex
	entries   map[EntityID]*storeEntry
	maxAge    float64
	retention float64
	capHint   int
}

type storeEntry struct {
	history   *History
	retired   bool
	retiredAt float64
}

// NewStore creates a store that keeps maxAge seconds of history per entity
// and retention seconds of history after an entity is retired. tickRate
// sizes new buffers.
func NewStore(maxAge, retention float64, tickRate int) *Store {
	capHint := int(maxAge*float64(tickRate)) + 2
	if capHint < 2 {
		capHint = 2
	}
	return &Store{
		entries:   make(map[EntityID]*storeEntry),
		maxAge:    maxAge,
		retention: retention,
		capHint:   capHint,
	}
}

// Activate returns the history for id, creating it if needed. A retired
// history is revived.
func (s *Store) Activate(id EntityID) *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activateLocked(id)
}

func (s *Store) activateLocked(id EntityID) *History {
	e, ok := s.entries[id]
	if !ok {
		e = &storeEntry{history: NewHistory(s.capHint)}
		s.entries[id] = e
	}
	e.retired = false
	return e.history
}

// Record appends one sample for id, activating it if needed.
func (s *Store) Record(id EntityID, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activateLocked(id).Append(sample)
}

// Retire marks id as no longer simulated. Its history stays readable until
// the retention period has passed.
func (s *Store) Retire(id EntityID, now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && !e.retired {
		e.retired = true
		e.retiredAt = now
	}
}

// Trim trims every history to maxAge and drops retired histories whose
// retention has expired. It returns the number of histories dropped.
func (s *Store) Trim(now float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, e := range s.entries {
		if e.retired && now-e.retiredAt >= s.retention {
			delete(s.entries, id)
			dropped++
			continue
		}
		e.history.Trim(now, s.maxAge)
	}
	return dropped
}

// HistoryFor returns the history of id. The returned buffer must only be
// read from the simulation goroutine.
func (s *Store) HistoryFor(id EntityID) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.history, true
}

// SamplesFor returns a copy of id's samples. Safe from any goroutine.
func (s *Store) SamplesFor(id EntityID) ([]Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.history.Samples(), true
}

// IDs returns the ids with a history, sorted.
func (s *Store) IDs() []EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]EntityID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of histories, retired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
