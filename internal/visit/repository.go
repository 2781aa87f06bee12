package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVisitNotFound     = errors.New("visit not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrCaregiverNotFound = errors.New("caregiver not found")

	// ErrInvalidTimeRange covers inverted and zero-length scheduled windows.
	// Validated at the service boundary so bad intervals never reach the
	// booking index.
	ErrInvalidTimeRange = errors.New("scheduled_end must be after scheduled_start")

	ErrStatusTransition = errors.New("invalid visit status transition")

	// ErrVisitChanged reports that a guarded update found the visit in a
	// different state than the caller validated against.
	ErrVisitChanged = errors.New("visit changed concurrently")
)

// Guard pins the visit state an assignment decision was validated against.
// A guarded update only lands while the row still matches; anything else —
// a moved window, a different caregiver, a cancellation — fails with
// ErrVisitChanged instead of committing over the concurrent change.
type Guard struct {
	CaregiverID *uuid.UUID
	Start       time.Time
	End         time.Time
}

// Repository contains all store interactions needed by the scheduling core.
type Repository interface {
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetCaregiverByID(ctx context.Context, id uuid.UUID) (*Caregiver, error)

	GetVisitByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	CreateVisit(ctx context.Context, v *Visit) (*Visit, error)

	// UpdateCaregiver writes the assignment field; nil caregiverID unassigns.
	// The write is conditional on guard so a conflict check can never be
	// invalidated between validation and commit. Only the assignment service
	// may call this.
	UpdateCaregiver(ctx context.Context, visitID uuid.UUID, caregiverID *uuid.UUID, guard Guard) (*Visit, error)

	// UpdateSchedule moves the scheduled window, conditional on the visit
	// still being assigned to expectCaregiverID (nil: still unassigned).
	UpdateSchedule(ctx context.Context, visitID uuid.UUID, start, end time.Time, expectCaregiverID *uuid.UUID) (*Visit, error)
	UpdateStatus(ctx context.Context, visitID uuid.UUID, to Status, allowedFrom ...Status) (*Visit, error)

	// ListCaregiverBookings returns the caregiver's non-cancelled visits
	// overlapping [start, end), excluding excludeVisitID. This is the
	// authoritative conflict re-check run inside the caregiver lock.
	ListCaregiverBookings(ctx context.Context, caregiverID uuid.UUID, start, end time.Time, excludeVisitID uuid.UUID) ([]Visit, error)

	// ListActiveBookings returns every assigned, non-cancelled visit ending
	// after since. Used to warm the interval index at startup.
	ListActiveBookings(ctx context.Context, since time.Time) ([]Visit, error)

	// ListVisitsIntersecting returns visits whose scheduled window intersects
	// [start, end), hydrated with caregiver names, ordered by start then id.
	ListVisitsIntersecting(ctx context.Context, start, end time.Time, f ListFilter) ([]VisitDetail, error)

	ListUnassigned(ctx context.Context, start, end time.Time) ([]VisitDetail, error)
	CountUnassignedStartingBetween(ctx context.Context, from, to time.Time) (int, error)
}
