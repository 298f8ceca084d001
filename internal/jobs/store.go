package jobs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tendant/newscast/pkg/schema"
)

// Store persists job records. Implementations must be safe for concurrent
// use and must never hand out references to their internal state.
type Store interface {
	Put(job schema.Job) error
	Get(id string) (schema.Job, error)
	// Update applies fn to a copy of the job and stores it if fn returns nil.
	Update(id string, fn func(job *schema.Job) error) (schema.Job, error)
	Delete(id string) error
	List() []schema.Job
}

const DefaultMaxJobs = 1000

// MemoryStore keeps jobs in memory. When full it evicts the oldest jobs that
// already reached a terminal stage.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]schema.Job
	order []string
	max   int
}

func NewMemoryStore(maxJobs int) *MemoryStore {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &MemoryStore{jobs: make(map[string]schema.Job), max: maxJobs}
}

func (s *MemoryStore) Put(job schema.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	if len(s.jobs) >= s.max {
		s.evictLocked(len(s.jobs) - s.max + 1)
	}
	s.jobs[job.ID] = job.Clone()
	s.order = append(s.order, job.ID)
	return nil
}

// evictLocked removes up to n terminal jobs, oldest first.
func (s *MemoryStore) evictLocked(n int) {
	kept := s.order[:0]
	for _, id := range s.order {
		if n > 0 && s.jobs[id].Stage.Terminal() {
			delete(s.jobs, id)
			n--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *MemoryStore) Get(id string) (schema.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return schema.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(id string, fn func(job *schema.Job) error) (schema.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return schema.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return current.Clone(), err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.jobs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns snapshots ordered by creation time.
func (s *MemoryStore) List() []schema.Job {
	s.mu.RLock()
	out := make([]schema.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
