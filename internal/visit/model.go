package visit

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Active reports whether a visit in this status occupies its caregiver's
// schedule. Cancelled visits free the window; everything else holds it.
func (s Status) Active() bool {
	return s != StatusCancelled
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Caregiver struct {
	ID        uuid.UUID
	Name      string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Visit is a scheduled, time-boxed unit of in-home care. ClientName and
// ClientAddress are denormalized from the client directory at creation time so
// calendar layouts do not need a join per render. ActualStart/ActualEnd are
// written by the clock-in collaborator and read-only here.
type Visit struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	ClientName     string
	ClientAddress  string
	CaregiverID    *uuid.UUID
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	ServiceType    string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Assigned reports whether the visit currently has a caregiver.
func (v *Visit) Assigned() bool {
	return v.CaregiverID != nil
}

// Overlaps applies half-open interval semantics: a visit ending exactly when
// another starts is not an overlap.
func (v *Visit) Overlaps(start, end time.Time) bool {
	return v.ScheduledStart.Before(end) && start.Before(v.ScheduledEnd)
}

// VisitDetail is a visit hydrated with the assigned caregiver's display name.
type VisitDetail struct {
	Visit
	CaregiverName string
}

// ListFilter narrows visit listings. Nil fields are not applied.
type ListFilter struct {
	CaregiverID *uuid.UUID
	ClientID    *uuid.UUID
	Status      *Status
}
