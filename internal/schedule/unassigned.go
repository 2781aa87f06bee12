package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/lumacare/visit-scheduling/internal/visit"
)

// The unassigned queue is a filter over the visit store, not a separate
// structure, but callers treat it as actionable: it drives the staffing
// alert worker.

// ListUnassigned returns the non-cancelled visits in [start, end) that still
// need a caregiver, ordered by start time.
func (s *Service) ListUnassigned(ctx context.Context, start, end time.Time) ([]visit.VisitDetail, error) {
	if !end.After(start) {
		return nil, visit.ErrInvalidTimeRange
	}

	unassigned, err := s.repo.ListUnassigned(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list unassigned visits: %w", err)
	}
	return unassigned, nil
}

// CountUnassignedWithin counts unfilled visits starting within the horizon
// from now. This is the staffing-risk signal consumed by the alert worker.
func (s *Service) CountUnassignedWithin(ctx context.Context, horizon time.Duration) (int, error) {
	now := time.Now()

	count, err := s.repo.CountUnassignedStartingBetween(ctx, now, now.Add(horizon))
	if err != nil {
		return 0, fmt.Errorf("count unassigned visits: %w", err)
	}
	return count, nil
}
