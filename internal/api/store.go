package api

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/tessera/internal/schedule"
)

type scheduleRecord struct {
	Schedule  *schedule.Schedule
	CreatedAt time.Time
}

// ScheduleStore keeps finalized schedules in memory. Schedules are never
// mutated after they are stored.
type ScheduleStore struct {
	mu        sync.Mutex
	schedules map[string]*scheduleRecord
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{
		schedules: make(map[string]*scheduleRecord),
	}
}

// Create stores s under a new id and stamps the id on it.
func (s *ScheduleStore) Create(sched *schedule.Schedule, now time.Time) string {
	id := newScheduleID()
	sched.ID = id

	s.mu.Lock()
	s.schedules[id] = &scheduleRecord{Schedule: sched, CreatedAt: now}
	s.mu.Unlock()

	return id
}

func (s *ScheduleStore) Get(id string) (*scheduleRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.schedules[id]
	return rec, ok
}

func (s *ScheduleStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return false
	}
	delete(s.schedules, id)
	return true
}

// List returns the stored records, oldest first.
func (s *ScheduleStore) List() []scheduleRecord {
	s.mu.Lock()
	out := make([]scheduleRecord, 0, len(s.schedules))
	for _, rec := range s.schedules {
		out = append(out, *rec)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b scheduleRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Schedule.ID < b.Schedule.ID {
			return -1
		}
		if a.Schedule.ID > b.Schedule.ID {
			return 1
		}
		return 0
	})
	return out
}

func newScheduleID() string {
	return "sched_" + uuid.NewString()
}
