package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 9, 7, hour, min, 0, 0, time.UTC)
}

func TestIndexQueryOverlap(t *testing.T) {
	ix := NewIndex()
	caregiver := uuid.New()

	morning := uuid.New()
	afternoon := uuid.New()
	ix.Insert(caregiver, morning, at(9, 0), at(11, 0))
	ix.Insert(caregiver, afternoon, at(13, 0), at(15, 0))

	t.Run("window inside a booking conflicts", func(t *testing.T) {
		hits := ix.Query(caregiver, at(9, 30), at(10, 30), uuid.Nil)
		assert.Equal(t, []uuid.UUID{morning}, hits)
	})

	t.Run("window spanning both bookings reports both in start order", func(t *testing.T) {
		hits := ix.Query(caregiver, at(10, 0), at(14, 0), uuid.Nil)
		assert.Equal(t, []uuid.UUID{morning, afternoon}, hits)
	})

	t.Run("gap between bookings is free", func(t *testing.T) {
		hits := ix.Query(caregiver, at(11, 30), at(12, 30), uuid.Nil)
		assert.Empty(t, hits)
	})

	t.Run("half-open semantics: end equals start is not a conflict", func(t *testing.T) {
		assert.Empty(t, ix.Query(caregiver, at(11, 0), at(13, 0), uuid.Nil))
		assert.Empty(t, ix.Query(caregiver, at(7, 0), at(9, 0), uuid.Nil))
	})

	t.Run("excluded visit does not conflict with itself", func(t *testing.T) {
		hits := ix.Query(caregiver, at(9, 0), at(11, 0), morning)
		assert.Empty(t, hits)
	})

	t.Run("other caregivers are independent", func(t *testing.T) {
		hits := ix.Query(uuid.New(), at(9, 0), at(11, 0), uuid.Nil)
		assert.Empty(t, hits)
	})
}

func TestIndexInsertReplacesSameVisit(t *testing.T) {
	ix := NewIndex()
	caregiver := uuid.New()
	visitID := uuid.New()

	ix.Insert(caregiver, visitID, at(9, 0), at(10, 0))
	ix.Insert(caregiver, visitID, at(14, 0), at(15, 0))

	require.Equal(t, 1, ix.Size())
	assert.Empty(t, ix.Query(caregiver, at(9, 0), at(10, 0), uuid.Nil))
	assert.Equal(t, []uuid.UUID{visitID}, ix.Query(caregiver, at(14, 0), at(15, 0), uuid.Nil))
}

func TestIndexRemoveIsIdempotent(t *testing.T) {
	ix := NewIndex()
	caregiver := uuid.New()
	visitID := uuid.New()

	ix.Insert(caregiver, visitID, at(9, 0), at(10, 0))

	ix.Remove(caregiver, visitID)
	assert.Equal(t, 0, ix.Size())

	// Removing again, or removing something never booked, is a no-op.
	ix.Remove(caregiver, visitID)
	ix.Remove(uuid.New(), uuid.New())
	assert.Equal(t, 0, ix.Size())
}

func TestIndexPruneBefore(t *testing.T) {
	ix := NewIndex()
	caregiver := uuid.New()

	old := uuid.New()
	recent := uuid.New()
	ix.Insert(caregiver, old, at(8, 0), at(9, 0))
	ix.Insert(caregiver, recent, at(12, 0), at(13, 0))

	ix.PruneBefore(at(10, 0))

	assert.Equal(t, 1, ix.Size())
	assert.Empty(t, ix.Query(caregiver, at(8, 0), at(9, 0), uuid.Nil))
	assert.Equal(t, []uuid.UUID{recent}, ix.Query(caregiver, at(12, 0), at(13, 0), uuid.Nil))
}

func TestIndexKeepsManyBookingsSorted(t *testing.T) {
	ix := NewIndex()
	caregiver := uuid.New()

	// Insert in reverse order; queries must still come back in start order.
	ids := make([]uuid.UUID, 10)
	for i := 9; i >= 0; i-- {
		ids[i] = uuid.New()
		ix.Insert(caregiver, ids[i], at(8+i, 0), at(8+i, 45))
	}

	hits := ix.Query(caregiver, at(8, 0), at(18, 0), uuid.Nil)
	assert.Equal(t, ids, hits)
}
