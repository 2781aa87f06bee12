package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSchedulingContended is returned after the single internal retry on
	// lock contention fails. Safe for the caller to retry.
	ErrSchedulingContended = errors.New("caregiver schedule is being modified, please retry")

	// ErrVisitCancelled guards assignment and reschedule of cancelled visits.
	ErrVisitCancelled = errors.New("visit is cancelled")

	// ErrVisitCompleted guards cancellation of completed visits.
	ErrVisitCompleted = errors.New("visit is already completed")
)

// ConflictError reports that a caregiver is already booked during the
// requested window. It carries the colliding visit ids so a scheduler can
// resolve the conflict without guessing. Never retried automatically.
type ConflictError struct {
	CaregiverID         uuid.UUID
	ConflictingVisitIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("caregiver %s has %d conflicting visit(s) in the requested window",
		e.CaregiverID, len(e.ConflictingVisitIDs))
}

// AsConflict unwraps a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
