package booking

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Interval is one booked window in a caregiver's schedule. Intervals are
// half-open: [Start, End).
type Interval struct {
	VisitID uuid.UUID
	Start   time.Time
	End     time.Time
}

// Index holds, per caregiver, the sorted set of booked windows for fast
// overlap queries. Committed intervals for one caregiver never overlap, so
// both Start and End are strictly increasing within a caregiver's slice and
// a query is a binary search plus a bounded scan.
//
// The index is a fast path, not the source of truth; the assignment service
// re-checks the store inside its critical section before committing.
type Index struct {
	mu          sync.RWMutex
	byCaregiver map[uuid.UUID][]Interval
}

func NewIndex() *Index {
	return &Index{
		byCaregiver: make(map[uuid.UUID][]Interval),
	}
}

// Query returns the ids of booked visits overlapping [start, end) for the
// caregiver, excluding excludeVisitID, in start order.
func (ix *Index) Query(caregiverID uuid.UUID, start, end time.Time, excludeVisitID uuid.UUID) []uuid.UUID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ivs := ix.byCaregiver[caregiverID]

	// First interval that could overlap: the earliest with End > start.
	i := sort.Search(len(ivs), func(i int) bool {
		return ivs[i].End.After(start)
	})

	var hits []uuid.UUID
	for ; i < len(ivs) && ivs[i].Start.Before(end); i++ {
		if ivs[i].VisitID == excludeVisitID {
			continue
		}
		hits = append(hits, ivs[i].VisitID)
	}

	return hits
}

// Insert records a booking, replacing any existing entry for the same visit
// (a reschedule moves the interval in one call).
func (ix *Index) Insert(caregiverID, visitID uuid.UUID, start, end time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ivs := removeVisit(ix.byCaregiver[caregiverID], visitID)

	at := sort.Search(len(ivs), func(i int) bool {
		return !ivs[i].Start.Before(start)
	})

	ivs = append(ivs, Interval{})
	copy(ivs[at+1:], ivs[at:])
	ivs[at] = Interval{VisitID: visitID, Start: start, End: end}

	ix.byCaregiver[caregiverID] = ivs
}

// Remove drops the visit's booking if present. Removing a booking that does
// not exist is a no-op.
func (ix *Index) Remove(caregiverID, visitID uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ivs := removeVisit(ix.byCaregiver[caregiverID], visitID)
	if len(ivs) == 0 {
		delete(ix.byCaregiver, caregiverID)
		return
	}
	ix.byCaregiver[caregiverID] = ivs
}

// PruneBefore evicts intervals that ended before the cutoff, bounding memory
// to the configured look-back horizon.
func (ix *Index) PruneBefore(cutoff time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for cg, ivs := range ix.byCaregiver {
		kept := ivs[:0]
		for _, iv := range ivs {
			if iv.End.After(cutoff) {
				kept = append(kept, iv)
			}
		}
		if len(kept) == 0 {
			delete(ix.byCaregiver, cg)
			continue
		}
		ix.byCaregiver[cg] = kept
	}
}

// Size returns the total number of indexed bookings.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := 0
	for _, ivs := range ix.byCaregiver {
		n += len(ivs)
	}
	return n
}

func removeVisit(ivs []Interval, visitID uuid.UUID) []Interval {
	for i, iv := range ivs {
		if iv.VisitID == visitID {
			return append(ivs[:i:i], ivs[i+1:]...)
		}
	}
	return ivs
}
