package schedule

import (
	"sort"
	"sync"
	"time"

	"castbot/internal/civiltime"
	"castbot/internal/payload"

	"github.com/google/uuid"
)

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]*Schedule
	newID func() string
}

func NewStore() *Store {
	return &Store{items: map[string]*Schedule{}, newID: uuid.NewString}
}

// Create stores s as a new active schedule and returns the stored copy.
func (st *Store) Create(s Schedule) (Schedule, error) {
	if err := s.validate(); err != nil {
		return Schedule{}, err
	}
	s = s.clone()
	s.ID = st.newID()
	s.Status = StatusActive
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	st.mu.Lock()
	st.items[s.ID] = &s
	st.mu.Unlock()
	return s.clone(), nil
}

func (st *Store) Get(id string) (Schedule, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.items[id]
	if !ok {
		return Schedule{}, false
	}
	return s.clone(), true
}

// Owned returns the schedule only if owner may still mutate it.
func (st *Store) Owned(owner int64, id string) (Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.ownedLocked(owner, id)
	if err != nil {
		return Schedule{}, err
	}
	return s.clone(), nil
}

func (st *Store) ownedLocked(owner int64, id string) (*Schedule, error) {
	s, ok := st.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Owner != owner {
		return nil, ErrForbidden
	}
	if s.Status != StatusActive {
		return nil, ErrNotActive
	}
	return s, nil
}

// ListActive returns owner's active schedules, earliest next run first.
func (st *Store) ListActive(owner int64) []Schedule {
	st.mu.Lock()
	out := make([]Schedule, 0, len(st.items))
	for _, s := range st.items {
		if s.Owner == owner && s.Status == StatusActive {
			out = append(out, s.clone())
		}
	}
	st.mu.Unlock()
	sortByNextRun(out)
	return out
}

// Due returns active schedules whose next run is at or before now, earliest first.
func (st *Store) Due(now time.Time) []Schedule {
	st.mu.Lock()
	out := make([]Schedule, 0)
	for _, s := range st.items {
		if s.Status == StatusActive && !s.NextRunAt.After(now) {
			out = append(out, s.clone())
		}
	}
	st.mu.Unlock()
	sortByNextRun(out)
	return out
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.items)
}

func (st *Store) Cancel(owner int64, id string) (Schedule, error) {
	return st.mutate(owner, id, func(s *Schedule) error {
		s.Status = StatusCancelled
		return nil
	})
}

// ReplacePayload swaps the payload of an active schedule; the old one is discarded.
func (st *Store) ReplacePayload(owner int64, id string, p payload.Payload) (Schedule, error) {
	if !p.Supported() {
		return Schedule{}, payload.ErrUnsupported
	}
	return st.mutate(owner, id, func(s *Schedule) error {
		s.Payload = p.Clone()
		return nil
	})
}

// Reschedule moves the next run. For daily schedules tod replaces the time of day.
func (st *Store) Reschedule(owner int64, id string, next time.Time, tod *civiltime.TimeOfDay) (Schedule, error) {
	return st.mutate(owner, id, func(s *Schedule) error {
		if s.Mode == ModeDaily {
			if tod == nil || !tod.Valid() {
				return ErrInvalid
			}
			d := *tod
			s.Daily = &d
		}
		s.NextRunAt = next
		return nil
	})
}

func (st *Store) mutate(owner int64, id string, fn func(s *Schedule) error) (Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.ownedLocked(owner, id)
	if err != nil {
		return Schedule{}, err
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return Schedule{}, err
	}
	*s = cp
	return s.clone(), nil
}

// MarkRan records a successful execution of the occurrence due at due.
// Once schedules complete; daily schedules move to next. A schedule
// cancelled mid-flight stays cancelled, and one rescheduled mid-flight
// keeps its new next run.
func (st *Store) MarkRan(id string, due, at, next time.Time, sent, total int) (Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.items[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	s.LastRunAt = at
	s.Runs++
	s.LastSent, s.LastTotal = sent, total
	s.LastError = ""
	s.advance(due, next, StatusCompleted)
	return s.clone(), nil
}

// MarkFailed records a delivery-stage failure of the occurrence due at due.
// Once schedules fail for good; daily schedules stay active and retry at
// their next occurrence.
func (st *Store) MarkFailed(id string, due, next time.Time, cause error) (Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.items[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	if cause != nil {
		s.LastError = cause.Error()
	}
	s.advance(due, next, StatusFailed)
	return s.clone(), nil
}

func (s *Schedule) advance(due, next time.Time, terminal Status) {
	if s.Status != StatusActive {
		return
	}
	// Edited while the run was in flight: the edit wins.
	if !s.NextRunAt.Equal(due) {
		return
	}
	if s.Mode == ModeOnce {
		s.Status = terminal
		return
	}
	if !next.IsZero() {
		s.NextRunAt = next
	}
}

func sortByNextRun(out []Schedule) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
