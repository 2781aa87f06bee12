package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumacare/visit-scheduling/internal/visit"
)

var testHours = VisibleHours{StartHour: 6, EndHour: 22}

func mondayAt(hour, min int) time.Time {
	// 2026-09-07 is a Monday; its week starts Sunday 2026-09-06.
	return time.Date(2026, 9, 7, hour, min, 0, 0, time.UTC)
}

func detail(id uuid.UUID, caregiverID *uuid.UUID, name string, start, end time.Time) visit.VisitDetail {
	return visit.VisitDetail{
		Visit: visit.Visit{
			ID:             id,
			ClientName:     "Client",
			CaregiverID:    caregiverID,
			ScheduledStart: start,
			ScheduledEnd:   end,
			ServiceType:    "Personal Care",
			Status:         visit.StatusScheduled,
		},
		CaregiverName: name,
	}
}

func TestWeekOfResolvesSameWindowForEveryDay(t *testing.T) {
	want := WeekOf(mondayAt(12, 0), time.UTC)
	require.Equal(t, time.Sunday, want.Start.Weekday())
	require.Equal(t, "2026-09-06", want.Start.Format("2006-01-02"))

	for day := 0; day < 7; day++ {
		ref := want.Start.AddDate(0, 0, day).Add(15 * time.Hour)
		got := WeekOf(ref, time.UTC)
		assert.True(t, got.Start.Equal(want.Start), "day %d resolved to %s", day, got.Start)
	}

	// The next day rolls over to a new window.
	next := WeekOf(want.End(), time.UTC)
	assert.True(t, next.Start.Equal(want.End()))
}

func TestWeekWindowContains(t *testing.T) {
	week := WeekOf(mondayAt(12, 0), time.UTC)

	assert.True(t, week.Contains(week.Start))
	assert.True(t, week.Contains(week.End().Add(-time.Minute)))
	assert.False(t, week.Contains(week.End()))
	assert.False(t, week.Contains(week.Start.Add(-time.Minute)))
}

func TestProjectIsDeterministic(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)
	cgA, cgB := uuid.New(), uuid.New()

	visits := []visit.VisitDetail{
		detail(uuid.New(), &cgA, "Ada", mondayAt(9, 0), mondayAt(11, 0)),
		detail(uuid.New(), &cgB, "Ben", mondayAt(10, 0), mondayAt(12, 0)),
		detail(uuid.New(), nil, "", mondayAt(13, 0), mondayAt(14, 0)),
	}

	first := Project(visits, week, testHours)
	second := Project(visits, week, testHours)

	assert.Equal(t, first, second)

	// Input order must not matter either.
	reversed := []visit.VisitDetail{visits[2], visits[1], visits[0]}
	third := Project(reversed, week, testHours)
	assert.Equal(t, first, third)
}

func TestProjectGeometry(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)
	cg := uuid.New()

	long := detail(uuid.New(), &cg, "Ada", mondayAt(9, 0), mondayAt(13, 0))
	tiny := detail(uuid.New(), &cg, "Ada", mondayAt(14, 0), mondayAt(14, 5))

	layout := Project([]visit.VisitDetail{long, tiny}, week, testHours)

	monday := layout.Days[1]
	require.Len(t, monday.Blocks, 2)

	// 9:00 with a 6:00 visible start puts the block 180 minutes down.
	assert.Equal(t, 180, monday.Blocks[0].Top)
	assert.Equal(t, 240, monday.Blocks[0].Height)

	// A 5 minute visit still renders at the minimum clickable height.
	assert.Equal(t, MinBlockHeight, monday.Blocks[1].Height)
}

func TestProjectPaletteFirstSeenOrder(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)
	cgA, cgB := uuid.New(), uuid.New()
	tuesday := mondayAt(0, 0).AddDate(0, 0, 1)

	visits := []visit.VisitDetail{
		detail(uuid.New(), &cgB, "Ben", tuesday.Add(9*time.Hour), tuesday.Add(10*time.Hour)),
		detail(uuid.New(), &cgA, "Ada", mondayAt(9, 0), mondayAt(10, 0)),
		detail(uuid.New(), &cgA, "Ada", tuesday.Add(11*time.Hour), tuesday.Add(12*time.Hour)),
	}

	layout := Project(visits, week, testHours)

	// Ada appears first on the grid (Monday), so she gets the first palette
	// color no matter how the input slice was ordered.
	require.Len(t, layout.Legend, 2)
	assert.Equal(t, cgA, layout.Legend[0].CaregiverID)
	assert.Equal(t, palette[0], layout.Legend[0].Color)
	assert.Equal(t, cgB, layout.Legend[1].CaregiverID)
	assert.Equal(t, palette[1], layout.Legend[1].Color)

	// Both of Ada's blocks share her color.
	assert.Equal(t, layout.Days[1].Blocks[0].Color, layout.Days[2].Blocks[1].Color)
}

func TestProjectPaletteWrapsAround(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)

	var visits []visit.VisitDetail
	for i := 0; i < len(palette)+1; i++ {
		cg := uuid.New()
		start := mondayAt(6, 0).Add(time.Duration(i) * 30 * time.Minute)
		visits = append(visits, detail(uuid.New(), &cg, "CG", start, start.Add(15*time.Minute)))
	}

	layout := Project(visits, week, testHours)

	require.Len(t, layout.Legend, len(palette)+1)
	assert.Equal(t, palette[0], layout.Legend[len(palette)].Color)
}

func TestProjectUnassignedTreatment(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)

	layout := Project([]visit.VisitDetail{
		detail(uuid.New(), nil, "", mondayAt(9, 0), mondayAt(10, 0)),
	}, week, testHours)

	require.Len(t, layout.Days[1].Blocks, 1)
	block := layout.Days[1].Blocks[0]

	assert.True(t, block.Unassigned)
	assert.Equal(t, UnassignedColor, block.Color)
	assert.NotContains(t, palette, block.Color)
	assert.Empty(t, layout.Legend, "unassigned visits take no palette slot")
}

func TestProjectUsesLocalDayNotUTCDay(t *testing.T) {
	// 23:30 Eastern on Monday is already Tuesday in UTC; the visit must land
	// on Monday's column.
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2026, 9, 7, 23, 30, 0, 0, loc)
	week := WeekOf(start, loc)
	cg := uuid.New()

	layout := Project([]visit.VisitDetail{
		detail(uuid.New(), &cg, "Ada", start, start.Add(30*time.Minute)),
	}, week, VisibleHours{StartHour: 0, EndHour: 24})

	assert.Len(t, layout.Days[1].Blocks, 1, "expected the visit on Monday")
	assert.Empty(t, layout.Days[2].Blocks)
}

func TestProjectSkipsCancelledVisits(t *testing.T) {
	week := WeekOf(mondayAt(0, 0), time.UTC)
	cg := uuid.New()

	cancelled := detail(uuid.New(), &cg, "Ada", mondayAt(9, 0), mondayAt(10, 0))
	cancelled.Status = visit.StatusCancelled

	layout := Project([]visit.VisitDetail{cancelled}, week, testHours)

	assert.Empty(t, layout.Days[1].Blocks)
	assert.Empty(t, layout.Legend)
}

func TestProjectPartitionsByStartDate(t *testing.T) {
	week := WeekOf(mondayAt(12, 0), time.UTC)

	// Starts the Saturday before the week and spills past its Sunday
	// midnight.
	spill := detail(uuid.New(), nil, "", week.Start.Add(-time.Hour), week.Start.Add(time.Hour))
	inside := detail(uuid.New(), nil, "", week.Start.Add(9*time.Hour), week.Start.Add(10*time.Hour))

	layout := Project([]visit.VisitDetail{spill, inside}, week, testHours)

	require.Len(t, layout.Days[0].Blocks, 1, "only the visit starting on Sunday renders there")
	assert.Equal(t, inside.ID, layout.Days[0].Blocks[0].VisitID)

	// The spilling visit renders on the previous week's Saturday instead.
	prev := WeekOf(week.Start.Add(-time.Hour), time.UTC)
	prevLayout := Project([]visit.VisitDetail{spill}, prev, testHours)
	require.Len(t, prevLayout.Days[6].Blocks, 1)
	assert.Equal(t, spill.ID, prevLayout.Days[6].Blocks[0].VisitID)
}
