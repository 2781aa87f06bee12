package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/visit-scheduling/internal/visit"
)

type CreateVisitRequest struct {
	ClientID       string    `json:"client_id"`
	CaregiverID    *string   `json:"caregiver_id,omitempty"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	ServiceType    string    `json:"service_type"`
}

type AssignRequest struct {
	CaregiverID string `json:"caregiver_id"`
}

type RescheduleRequest struct {
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

type VisitResponse struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	ClientName     string     `json:"client_name"`
	ClientAddress  string     `json:"client_address"`
	CaregiverID    *uuid.UUID `json:"caregiver_id"`
	CaregiverName  string     `json:"caregiver_name,omitempty"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	ServiceType    string     `json:"service_type"`
	Status         string     `json:"status"`
}

func toVisitResponse(v *visit.Visit) VisitResponse {
	return VisitResponse{
		ID:             v.ID,
		ClientID:       v.ClientID,
		ClientName:     v.ClientName,
		ClientAddress:  v.ClientAddress,
		CaregiverID:    v.CaregiverID,
		ScheduledStart: v.ScheduledStart,
		ScheduledEnd:   v.ScheduledEnd,
		ActualStart:    v.ActualStart,
		ActualEnd:      v.ActualEnd,
		ServiceType:    v.ServiceType,
		Status:         string(v.Status),
	}
}

func toVisitDetailResponse(d *visit.VisitDetail) VisitResponse {
	resp := toVisitResponse(&d.Visit)
	resp.CaregiverName = d.CaregiverName
	return resp
}

// ConflictResponse carries the colliding visit ids, and on visit creation the
// created-but-unassigned visit.
type ConflictResponse struct {
	Error               string         `json:"error"`
	Details             string         `json:"details,omitempty"`
	ConflictingVisitIDs []uuid.UUID    `json:"conflictingVisitIds"`
	Visit               *VisitResponse `json:"visit,omitempty"`
}

type UnassignedCountResponse struct {
	Count       int `json:"count"`
	WithinHours int `json:"within_hours"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
