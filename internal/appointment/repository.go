package appointment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ListFilter narrows a listing query.
type ListFilter struct {
	// UserID restricts results to rows owned by this user. Empty means
	// no ownership restriction (elevated callers only).
	UserID string
	// Status filters on lifecycle state when non-empty.
	Status Status
	// UpcomingAfter, when non-zero, keeps only appointments starting at
	// or after this instant.
	UpcomingAfter time.Time
	// Limit caps the number of rows returned. Zero means the repository
	// default.
	Limit int
}

const defaultListLimit = 50

// Repository stores appointment records.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) error
	List(ctx context.Context, filter ListFilter) ([]*Appointment, error)
}

// InMemoryRepository keeps appointments in a map. Used in tests and
// local development without a database.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *appt
	r.items[appt.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[appt.ID]; !ok {
		return ErrNotFound
	}
	cp := *appt
	r.items[appt.ID] = &cp
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var out []*Appointment
	for _, appt := range r.items {
		if filter.UserID != "" && appt.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		if !filter.UpcomingAfter.IsZero() && appt.StartsAt.Before(filter.UpcomingAfter) {
			continue
		}
		cp := *appt
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
