package snapshot

import "sync"

// StatusRepository defines the concurrency-safe contract for the latest run
// outcome. Only the most recent values are kept; there is no history.
type StatusRepository interface {
	// RecordRun stores res as the latest run. A published snapshot in res
	// also becomes the latest published snapshot.
	RecordRun(res RunResult)

	// LastRun returns a copy of the latest run, ok is false before the first.
	LastRun() (res RunResult, ok bool)

	// LastPublished returns the most recent successful publish, which may be
	// older than LastRun when later runs failed to write.
	LastPublished() (snap Snapshot, ok bool)

	// RunCount is the number of runs recorded since start.
	RunCount() int
}

// InMemoryStatus is the in-memory StatusRepository.
type InMemoryStatus struct {
	mu        sync.RWMutex
	last      *RunResult
	published *Snapshot
	runs      int
}

// NewInMemoryStatus returns an empty repository.
func NewInMemoryStatus() *InMemoryStatus {
	return &InMemoryStatus{}
}

// RecordRun implements StatusRepository.RecordRun.
func (s *InMemoryStatus) RecordRun(res RunResult) {
	res = cloneRun(res)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.last = &res
	if res.Published && res.Snapshot != nil {
		snap := *res.Snapshot
		s.published = &snap
	}
}

// LastRun implements StatusRepository.LastRun.
func (s *InMemoryStatus) LastRun() (RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return RunResult{}, false
	}
	return cloneRun(*s.last), true
}

// LastPublished implements StatusRepository.LastPublished.
func (s *InMemoryStatus) LastPublished() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.published == nil {
		return Snapshot{}, false
	}
	return *s.published, true
}

// RunCount implements StatusRepository.RunCount.
func (s *InMemoryStatus) RunCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs
}

// cloneRun copies the slices and the snapshot so callers cannot mutate
// stored state. Encoded bytes are not retained.
func cloneRun(res RunResult) RunResult {
	if res.Slots != nil {
		res.Slots = append([]SlotResult(nil), res.Slots...)
	}
	if res.Snapshot != nil {
		snap := *res.Snapshot
		snap.Data = nil
		res.Snapshot = &snap
	}
	return res
}
