package visit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository used by tests and
// by dev tooling that runs without Postgres.
type MemoryRepository struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]Client
	caregivers map[uuid.UUID]Caregiver
	visits     map[uuid.UUID]Visit
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients:    make(map[uuid.UUID]Client),
		caregivers: make(map[uuid.UUID]Caregiver),
		visits:     make(map[uuid.UUID]Visit),
	}
}

// PutClient and PutCaregiver load directory fixtures.

func (r *MemoryRepository) PutClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

func (r *MemoryRepository) PutCaregiver(c Caregiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caregivers[c.ID] = c
}

func (r *MemoryRepository) GetClientByID(_ context.Context, id uuid.UUID) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetCaregiverByID(_ context.Context, id uuid.UUID) (*Caregiver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caregivers[id]
	if !ok {
		return nil, ErrCaregiverNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) GetVisitByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	return &v, nil
}

func (r *MemoryRepository) CreateVisit(_ context.Context, v *Visit) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *v
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.visits[stored.ID] = stored
	return &stored, nil
}

func (r *MemoryRepository) UpdateCaregiver(_ context.Context, visitID uuid.UUID, caregiverID *uuid.UUID, guard Guard) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visits[visitID]
	if !ok {
		return nil, ErrVisitNotFound
	}
	if !sameCaregiver(v.CaregiverID, guard.CaregiverID) ||
		!v.ScheduledStart.Equal(guard.Start) ||
		!v.ScheduledEnd.Equal(guard.End) ||
		!assignable(v.Status) {
		return nil, ErrVisitChanged
	}

	if caregiverID != nil {
		id := *caregiverID
		v.CaregiverID = &id
	} else {
		v.CaregiverID = nil
	}
	v.UpdatedAt = time.Now()

	r.visits[visitID] = v
	return &v, nil
}

func (r *MemoryRepository) UpdateSchedule(_ context.Context, visitID uuid.UUID, start, end time.Time, expectCaregiverID *uuid.UUID) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visits[visitID]
	if !ok {
		return nil, ErrVisitNotFound
	}
	if !sameCaregiver(v.CaregiverID, expectCaregiverID) || !v.Status.Active() {
		return nil, ErrVisitChanged
	}

	v.ScheduledStart = start
	v.ScheduledEnd = end
	v.UpdatedAt = time.Now()

	r.visits[visitID] = v
	return &v, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, visitID uuid.UUID, to Status, allowedFrom ...Status) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visits[visitID]
	if !ok {
		return nil, ErrVisitNotFound
	}

	allowed := false
	for _, s := range allowedFrom {
		if v.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrStatusTransition
	}

	v.Status = to
	v.UpdatedAt = time.Now()

	r.visits[visitID] = v
	return &v, nil
}

func (r *MemoryRepository) ListCaregiverBookings(_ context.Context, caregiverID uuid.UUID, start, end time.Time, excludeVisitID uuid.UUID) ([]Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Visit
	for _, v := range r.visits {
		if v.ID == excludeVisitID {
			continue
		}
		if v.CaregiverID == nil || *v.CaregiverID != caregiverID {
			continue
		}
		if !v.Status.Active() {
			continue
		}
		if v.Overlaps(start, end) {
			result = append(result, v)
		}
	}

	sortVisits(result)
	return result, nil
}

func (r *MemoryRepository) ListActiveBookings(_ context.Context, since time.Time) ([]Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Visit
	for _, v := range r.visits {
		if v.CaregiverID == nil || !v.Status.Active() {
			continue
		}
		if v.ScheduledEnd.After(since) {
			result = append(result, v)
		}
	}

	sortVisits(result)
	return result, nil
}

func (r *MemoryRepository) ListVisitsIntersecting(_ context.Context, start, end time.Time, f ListFilter) ([]VisitDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []VisitDetail
	for _, v := range r.visits {
		if !v.Overlaps(start, end) {
			continue
		}
		if f.CaregiverID != nil && (v.CaregiverID == nil || *v.CaregiverID != *f.CaregiverID) {
			continue
		}
		if f.ClientID != nil && v.ClientID != *f.ClientID {
			continue
		}
		if f.Status != nil && v.Status != *f.Status {
			continue
		}
		result = append(result, r.detail(v))
	}

	sortDetails(result)
	return result, nil
}

func (r *MemoryRepository) ListUnassigned(_ context.Context, start, end time.Time) ([]VisitDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []VisitDetail
	for _, v := range r.visits {
		if v.CaregiverID != nil || !v.Status.Active() {
			continue
		}
		if v.Overlaps(start, end) {
			result = append(result, VisitDetail{Visit: v})
		}
	}

	sortDetails(result)
	return result, nil
}

func (r *MemoryRepository) CountUnassignedStartingBetween(_ context.Context, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, v := range r.visits {
		if v.CaregiverID != nil || !v.Status.Active() {
			continue
		}
		if !v.ScheduledStart.Before(from) && v.ScheduledStart.Before(to) {
			count++
		}
	}

	return count, nil
}

func (r *MemoryRepository) detail(v Visit) VisitDetail {
	d := VisitDetail{Visit: v}
	if v.CaregiverID != nil {
		if cg, ok := r.caregivers[*v.CaregiverID]; ok {
			d.CaregiverName = cg.Name
		}
	}
	return d
}

func sameCaregiver(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func assignable(s Status) bool {
	return s == StatusScheduled || s == StatusInProgress
}

func sortVisits(vs []Visit) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].ScheduledStart.Equal(vs[j].ScheduledStart) {
			return vs[i].ScheduledStart.Before(vs[j].ScheduledStart)
		}
		return vs[i].ID.String() < vs[j].ID.String()
	})
}

func sortDetails(ds []VisitDetail) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].ScheduledStart.Equal(ds[j].ScheduledStart) {
			return ds[i].ScheduledStart.Before(ds[j].ScheduledStart)
		}
		return ds[i].ID.String() < ds[j].ID.String()
	})
}
