package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/visit-scheduling/internal/booking"
	"github.com/lumacare/visit-scheduling/internal/config"
	redisclient "github.com/lumacare/visit-scheduling/internal/redis"
	"github.com/lumacare/visit-scheduling/internal/visit"
)

const lockRetryDelay = 50 * time.Millisecond

// Service is the only path by which a visit's caregiver assignment or
// scheduled window may change. Every mutation re-reads the visit and runs a
// conflict check under the caregiver's lock, and commits through a guarded
// write that fails if the checked state changed underneath it — so two
// concurrent edits into overlapping windows cannot both succeed.
type Service struct {
	repo   visit.Repository
	index  *booking.Index
	locker redisclient.Locker
	cfg    config.Config
	loc    *time.Location
	hours  VisibleHours
}

func NewService(repo visit.Repository, index *booking.Index, locker redisclient.Locker, cfg config.Config, loc *time.Location) *Service {
	return &Service{
		repo:   repo,
		index:  index,
		locker: locker,
		cfg:    cfg,
		loc:    loc,
		hours:  VisibleHours{StartHour: cfg.CalendarDayStart, EndHour: cfg.CalendarDayEnd},
	}
}

// WarmUp loads active bookings within the look-back horizon into the interval
// index. Called once at startup before the service takes traffic.
func (s *Service) WarmUp(ctx context.Context) (int, error) {
	since := time.Now().Add(-s.cfg.IndexLookback)

	bookings, err := s.repo.ListActiveBookings(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("load active bookings: %w", err)
	}

	for _, b := range bookings {
		s.index.Insert(*b.CaregiverID, b.ID, b.ScheduledStart, b.ScheduledEnd)
	}

	return len(bookings), nil
}

// PruneIndex evicts bookings older than the look-back horizon.
func (s *Service) PruneIndex() {
	s.index.PruneBefore(time.Now().Add(-s.cfg.IndexLookback))
}

type CreateVisitParams struct {
	ClientID    uuid.UUID
	CaregiverID *uuid.UUID
	Start       time.Time
	End         time.Time
	ServiceType string
}

// CreateVisit validates and persists a new visit. When a caregiver is
// requested and the assignment conflicts, the visit is still created — left
// unassigned — and the returned visit accompanies the ConflictError so the
// caller never silently loses the visit.
func (s *Service) CreateVisit(ctx context.Context, p CreateVisitParams) (*visit.Visit, error) {
	if !p.End.After(p.Start) {
		return nil, visit.ErrInvalidTimeRange
	}

	client, err := s.repo.GetClientByID(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, visit.ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	created, err := s.repo.CreateVisit(ctx, &visit.Visit{
		ClientID:       client.ID,
		ClientName:     client.Name,
		ClientAddress:  client.Address,
		ScheduledStart: p.Start,
		ScheduledEnd:   p.End,
		ServiceType:    p.ServiceType,
		Status:         visit.StatusScheduled,
	})
	if err != nil {
		return nil, fmt.Errorf("create visit: %w", err)
	}

	if p.CaregiverID == nil {
		return created, nil
	}

	assigned, err := s.Assign(ctx, created.ID, *p.CaregiverID)
	if err != nil {
		// The visit exists but stays unassigned; surface both.
		return created, err
	}

	return assigned, nil
}

// Assign binds a caregiver to a visit if the caregiver's schedule is free for
// the visit's window. Already assigned to someone else means reassignment
// semantics apply.
func (s *Service) Assign(ctx context.Context, visitID, caregiverID uuid.UUID) (*visit.Visit, error) {
	v, err := s.loadAssignable(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetCaregiverByID(ctx, caregiverID); err != nil {
		if errors.Is(err, visit.ErrCaregiverNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load caregiver: %w", err)
	}

	if v.CaregiverID != nil {
		if *v.CaregiverID == caregiverID {
			return v, nil
		}
		return s.Reassign(ctx, visitID, caregiverID)
	}

	// Fast-path rejection before taking the lock.
	if ids := s.index.Query(caregiverID, v.ScheduledStart, v.ScheduledEnd, v.ID); len(ids) > 0 {
		return nil, &ConflictError{CaregiverID: caregiverID, ConflictingVisitIDs: ids}
	}

	var updated *visit.Visit

	err = s.withLock(ctx, caregiverID, func(lockCtx context.Context) error {
		// Re-read under the lock: an unlocked edit (reschedule of an
		// unassigned visit, cancellation) may have changed the visit since
		// the first load, and the conflict check must use the current window.
		cur, err := s.loadAssignable(lockCtx, v.ID)
		if err != nil {
			return err
		}
		if cur.CaregiverID != nil {
			if *cur.CaregiverID == caregiverID {
				updated = cur
				return nil
			}
			return ErrSchedulingContended
		}

		conflicts, err := s.storeConflicts(lockCtx, caregiverID, cur.ScheduledStart, cur.ScheduledEnd, cur.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{CaregiverID: caregiverID, ConflictingVisitIDs: conflicts}
		}

		updated, err = s.repo.UpdateCaregiver(lockCtx, cur.ID, &caregiverID, visit.Guard{
			Start: cur.ScheduledStart,
			End:   cur.ScheduledEnd,
		})
		if err != nil {
			if errors.Is(err, visit.ErrVisitChanged) {
				return ErrSchedulingContended
			}
			return fmt.Errorf("commit assignment: %w", err)
		}

		s.index.Insert(caregiverID, updated.ID, updated.ScheduledStart, updated.ScheduledEnd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Unassign clears the visit's caregiver and releases the booked window.
// Idempotent: unassigning an unassigned visit succeeds without change.
func (s *Service) Unassign(ctx context.Context, visitID uuid.UUID) (*visit.Visit, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if v.CaregiverID == nil {
		return v, nil
	}

	caregiverID := *v.CaregiverID
	var updated *visit.Visit

	err = s.withLock(ctx, caregiverID, func(lockCtx context.Context) error {
		cur, err := s.repo.GetVisitByID(lockCtx, v.ID)
		if err != nil {
			return err
		}
		if cur.CaregiverID == nil {
			updated = cur
			return nil
		}
		if cur.Status == visit.StatusCancelled || cur.Status == visit.StatusCompleted {
			// The assignment is inert; nothing to release.
			updated = cur
			return nil
		}
		if *cur.CaregiverID != caregiverID {
			// Moved to another caregiver since the first load; this lock no
			// longer covers the assignment.
			return ErrSchedulingContended
		}

		updated, err = s.repo.UpdateCaregiver(lockCtx, cur.ID, nil, visit.Guard{
			CaregiverID: &caregiverID,
			Start:       cur.ScheduledStart,
			End:         cur.ScheduledEnd,
		})
		if err != nil {
			if errors.Is(err, visit.ErrVisitChanged) {
				return ErrSchedulingContended
			}
			return fmt.Errorf("commit unassignment: %w", err)
		}

		s.index.Remove(caregiverID, cur.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Reassign moves a visit to a new caregiver as one transaction. The new
// window is validated before either side mutates, so a conflicting
// reassignment leaves the original assignment intact — a covered visit is
// never dropped by a failed move.
func (s *Service) Reassign(ctx context.Context, visitID, newCaregiverID uuid.UUID) (*visit.Visit, error) {
	v, err := s.loadAssignable(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if v.CaregiverID == nil {
		return s.Assign(ctx, visitID, newCaregiverID)
	}

	oldCaregiverID := *v.CaregiverID
	if oldCaregiverID == newCaregiverID {
		return v, nil
	}

	if _, err := s.repo.GetCaregiverByID(ctx, newCaregiverID); err != nil {
		if errors.Is(err, visit.ErrCaregiverNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load caregiver: %w", err)
	}

	if ids := s.index.Query(newCaregiverID, v.ScheduledStart, v.ScheduledEnd, v.ID); len(ids) > 0 {
		return nil, &ConflictError{CaregiverID: newCaregiverID, ConflictingVisitIDs: ids}
	}

	var updated *visit.Visit

	err = s.withLocks(ctx, oldCaregiverID, newCaregiverID, func(lockCtx context.Context) error {
		// Re-read under both locks; the visit may have been unassigned,
		// moved, or cancelled between the first load and lock acquisition.
		cur, err := s.loadAssignable(lockCtx, v.ID)
		if err != nil {
			return err
		}
		if cur.CaregiverID == nil || *cur.CaregiverID != oldCaregiverID {
			return ErrSchedulingContended
		}

		conflicts, err := s.storeConflicts(lockCtx, newCaregiverID, cur.ScheduledStart, cur.ScheduledEnd, cur.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{CaregiverID: newCaregiverID, ConflictingVisitIDs: conflicts}
		}

		updated, err = s.repo.UpdateCaregiver(lockCtx, cur.ID, &newCaregiverID, visit.Guard{
			CaregiverID: &oldCaregiverID,
			Start:       cur.ScheduledStart,
			End:         cur.ScheduledEnd,
		})
		if err != nil {
			if errors.Is(err, visit.ErrVisitChanged) {
				return ErrSchedulingContended
			}
			return fmt.Errorf("commit reassignment: %w", err)
		}

		s.index.Remove(oldCaregiverID, updated.ID)
		s.index.Insert(newCaregiverID, updated.ID, updated.ScheduledStart, updated.ScheduledEnd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Reschedule moves a visit's window. An assigned visit is re-checked against
// its caregiver's other bookings before the edit is accepted.
func (s *Service) Reschedule(ctx context.Context, visitID uuid.UUID, newStart, newEnd time.Time) (*visit.Visit, error) {
	if !newEnd.After(newStart) {
		return nil, visit.ErrInvalidTimeRange
	}

	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if v.Status == visit.StatusCancelled {
		return nil, ErrVisitCancelled
	}

	if v.CaregiverID == nil {
		// The guarded write fails if a concurrent assignment landed after
		// the load above; the caller retries through the locked path.
		updated, err := s.repo.UpdateSchedule(ctx, v.ID, newStart, newEnd, nil)
		if err != nil {
			if errors.Is(err, visit.ErrVisitChanged) {
				return nil, ErrSchedulingContended
			}
			return nil, fmt.Errorf("commit reschedule: %w", err)
		}
		return updated, nil
	}

	caregiverID := *v.CaregiverID

	if ids := s.index.Query(caregiverID, newStart, newEnd, v.ID); len(ids) > 0 {
		return nil, &ConflictError{CaregiverID: caregiverID, ConflictingVisitIDs: ids}
	}

	var updated *visit.Visit

	err = s.withLock(ctx, caregiverID, func(lockCtx context.Context) error {
		cur, err := s.repo.GetVisitByID(lockCtx, v.ID)
		if err != nil {
			return err
		}
		if cur.Status == visit.StatusCancelled {
			return ErrVisitCancelled
		}
		if cur.CaregiverID == nil || *cur.CaregiverID != caregiverID {
			return ErrSchedulingContended
		}

		conflicts, err := s.storeConflicts(lockCtx, caregiverID, newStart, newEnd, cur.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{CaregiverID: caregiverID, ConflictingVisitIDs: conflicts}
		}

		updated, err = s.repo.UpdateSchedule(lockCtx, cur.ID, newStart, newEnd, &caregiverID)
		if err != nil {
			if errors.Is(err, visit.ErrVisitChanged) {
				return ErrSchedulingContended
			}
			return fmt.Errorf("commit reschedule: %w", err)
		}

		// Insert replaces the old interval for this visit.
		s.index.Insert(caregiverID, updated.ID, updated.ScheduledStart, updated.ScheduledEnd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Cancel marks the visit cancelled and frees its caregiver's window.
// Cancelling an already cancelled visit is a no-op.
func (s *Service) Cancel(ctx context.Context, visitID uuid.UUID) (*visit.Visit, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	switch v.Status {
	case visit.StatusCancelled:
		return v, nil
	case visit.StatusCompleted:
		return nil, ErrVisitCompleted
	}

	updated, err := s.repo.UpdateStatus(ctx, v.ID, visit.StatusCancelled,
		visit.StatusScheduled, visit.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("cancel visit: %w", err)
	}

	if v.CaregiverID != nil {
		s.index.Remove(*v.CaregiverID, v.ID)
	}

	return updated, nil
}

// GetVisit returns a visit hydrated with the caregiver's display name.
func (s *Service) GetVisit(ctx context.Context, visitID uuid.UUID) (*visit.VisitDetail, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	d := visit.VisitDetail{Visit: *v}
	if v.CaregiverID != nil {
		cg, err := s.repo.GetCaregiverByID(ctx, *v.CaregiverID)
		if err == nil {
			d.CaregiverName = cg.Name
		} else if !errors.Is(err, visit.ErrCaregiverNotFound) {
			return nil, fmt.Errorf("load caregiver: %w", err)
		}
	}

	return &d, nil
}

// ListVisits returns visits intersecting [start, end), hydrated and filtered.
func (s *Service) ListVisits(ctx context.Context, start, end time.Time, f visit.ListFilter) ([]visit.VisitDetail, error) {
	if !end.After(start) {
		return nil, visit.ErrInvalidTimeRange
	}
	return s.repo.ListVisitsIntersecting(ctx, start, end, f)
}

// GetWeek resolves the week containing date and projects its calendar layout.
func (s *Service) GetWeek(ctx context.Context, date time.Time) (*CalendarLayout, error) {
	week := WeekOf(date, s.loc)

	visits, err := s.repo.ListVisitsIntersecting(ctx, week.Start, week.End(), visit.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("load week visits: %w", err)
	}

	layout := Project(visits, week, s.hours)
	return &layout, nil
}

// loadAssignable fetches a visit and verifies it can still take a caregiver.
func (s *Service) loadAssignable(ctx context.Context, visitID uuid.UUID) (*visit.Visit, error) {
	v, err := s.repo.GetVisitByID(ctx, visitID)
	if err != nil {
		return nil, err
	}

	switch v.Status {
	case visit.StatusCancelled:
		return nil, ErrVisitCancelled
	case visit.StatusCompleted:
		return nil, visit.ErrStatusTransition
	}

	return v, nil
}

// storeConflicts is the authoritative overlap check, run inside the caregiver
// lock so it reads the latest committed assignments.
func (s *Service) storeConflicts(ctx context.Context, caregiverID uuid.UUID, start, end time.Time, excludeVisitID uuid.UUID) ([]uuid.UUID, error) {
	bookings, err := s.repo.ListCaregiverBookings(ctx, caregiverID, start, end, excludeVisitID)
	if err != nil {
		return nil, fmt.Errorf("check caregiver bookings: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

// withLock runs fn under the caregiver's lock, retrying once on contention.
// Conflicts and validation failures pass through untouched; only the lock
// acquisition itself is retried.
func (s *Service) withLock(ctx context.Context, caregiverID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithCaregiverLock(ctx, caregiverID, fn)
	if !errors.Is(err, redisclient.ErrLockNotAcquired) {
		return err
	}

	log.Printf("lock contention caregiver=%s, retrying once", caregiverID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(lockRetryDelay):
	}

	err = s.locker.WithCaregiverLock(ctx, caregiverID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSchedulingContended
	}
	return err
}

func (s *Service) withLocks(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithCaregiverLocks(ctx, a, b, fn)
	if !errors.Is(err, redisclient.ErrLockNotAcquired) {
		return err
	}

	log.Printf("lock contention caregivers=%s,%s, retrying once", a, b)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(lockRetryDelay):
	}

	err = s.locker.WithCaregiverLocks(ctx, a, b, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSchedulingContended
	}
	return err
}
