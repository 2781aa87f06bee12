package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lumacare/visit-scheduling/internal/visit"
)

// MinBlockHeight keeps very short visits visible and clickable on the grid.
// All layout units are minutes.
const MinBlockHeight = 15

// UnassignedColor marks visits without a caregiver; it is deliberately not
// part of the caregiver palette.
const UnassignedColor = "#c7c7c7"

// palette is fixed; caregivers get colors in first-seen order and wrap when
// there are more caregivers than colors. The legend disambiguates by name.
var palette = []string{
	"#4e79a7",
	"#f28e2b",
	"#e15759",
	"#76b7b2",
	"#59a14f",
	"#edc948",
	"#b07aa1",
	"#ff9da7",
	"#9c755f",
	"#bab0ac",
}

// WeekWindow is the Sunday-start 7-day range used by the weekly calendar.
// Start is midnight of the week's Sunday in the scheduling timezone.
type WeekWindow struct {
	Start time.Time
}

// WeekOf rolls any reference time back to the start of its week in loc.
func WeekOf(t time.Time, loc *time.Location) WeekWindow {
	lt := t.In(loc)
	midnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return WeekWindow{Start: midnight.AddDate(0, 0, -int(midnight.Weekday()))}
}

// End is the exclusive upper bound: midnight of the following Sunday.
func (w WeekWindow) End() time.Time {
	return w.Start.AddDate(0, 0, 7)
}

// Day returns midnight of day i (0 = Sunday) within the week.
func (w WeekWindow) Day(i int) time.Time {
	return w.Start.AddDate(0, 0, i)
}

func (w WeekWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// VisibleHours bounds the vertical axis of the calendar grid.
type VisibleHours struct {
	StartHour int
	EndHour   int
}

// VisitBlock is one positioned visit on a day column. Top and Height are
// minutes relative to the visible window's start.
type VisitBlock struct {
	VisitID       uuid.UUID  `json:"visitId"`
	ClientName    string     `json:"clientName"`
	CaregiverID   *uuid.UUID `json:"caregiverId,omitempty"`
	CaregiverName string     `json:"caregiverName,omitempty"`
	ServiceType   string     `json:"serviceType"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Top           int        `json:"top"`
	Height        int        `json:"height"`
	Color         string     `json:"color"`
	Unassigned    bool       `json:"unassigned"`
}

type DayColumn struct {
	Date   string       `json:"date"`
	Blocks []VisitBlock `json:"blocks"`
}

type LegendEntry struct {
	CaregiverID   uuid.UUID `json:"caregiverId"`
	CaregiverName string    `json:"caregiverName"`
	Color         string    `json:"color"`
}

type CalendarLayout struct {
	WeekStart string        `json:"weekStart"`
	Days      [7]DayColumn  `json:"days"`
	Legend    []LegendEntry `json:"legend"`
}

// Project lays the given visits out on the week's grid. It is a pure
// function: no retained state, and identical inputs produce identical output.
// Cancelled visits are not rendered.
func Project(visits []visit.VisitDetail, week WeekWindow, hours VisibleHours) CalendarLayout {
	loc := week.Start.Location()

	layout := CalendarLayout{
		WeekStart: week.Start.Format("2006-01-02"),
	}
	for i := 0; i < 7; i++ {
		layout.Days[i].Date = week.Day(i).Format("2006-01-02")
	}

	// Partition by local calendar day so a 23:30 visit lands on the day a
	// scheduler expects, not the UTC day.
	for _, v := range visits {
		if v.Status == visit.StatusCancelled {
			continue
		}

		localStart := v.ScheduledStart.In(loc)
		day, ok := dayIndex(week, localStart)
		if !ok {
			continue
		}

		block := positionBlock(v, localStart, hours)
		layout.Days[day].Blocks = append(layout.Days[day].Blocks, block)
	}

	for i := range layout.Days {
		sortBlocks(layout.Days[i].Blocks)
	}

	// Colors in first-seen order: scan days left to right, blocks top to
	// bottom, so re-projecting the same week never shuffles the palette.
	colorByCaregiver := make(map[uuid.UUID]string)
	for d := range layout.Days {
		for b := range layout.Days[d].Blocks {
			block := &layout.Days[d].Blocks[b]
			if block.Unassigned {
				block.Color = UnassignedColor
				continue
			}

			cg := *block.CaregiverID
			color, seen := colorByCaregiver[cg]
			if !seen {
				color = palette[len(layout.Legend)%len(palette)]
				colorByCaregiver[cg] = color
				layout.Legend = append(layout.Legend, LegendEntry{
					CaregiverID:   cg,
					CaregiverName: block.CaregiverName,
					Color:         color,
				})
			}
			block.Color = color
		}
	}

	return layout
}

// dayIndex places a visit by its local start date. A visit that starts
// before the week and spills past its Sunday midnight is not rendered here;
// it belongs to the previous week's grid.
func dayIndex(week WeekWindow, localStart time.Time) (int, bool) {
	for i := 0; i < 7; i++ {
		d := week.Day(i)
		if d.Year() == localStart.Year() && d.Month() == localStart.Month() && d.Day() == localStart.Day() {
			return i, true
		}
	}
	return 0, false
}

func positionBlock(v visit.VisitDetail, localStart time.Time, hours VisibleHours) VisitBlock {
	visStart := hours.StartHour * 60
	visEnd := hours.EndHour * 60

	startMin := localStart.Hour()*60 + localStart.Minute()
	height := int(v.ScheduledEnd.Sub(v.ScheduledStart).Minutes())

	// Clamp into the visible window.
	if startMin < visStart {
		height -= visStart - startMin
		startMin = visStart
	}
	if startMin > visEnd-MinBlockHeight {
		startMin = visEnd - MinBlockHeight
	}
	if startMin+height > visEnd {
		height = visEnd - startMin
	}
	if height < MinBlockHeight {
		height = MinBlockHeight
	}

	return VisitBlock{
		VisitID:       v.ID,
		ClientName:    v.ClientName,
		CaregiverID:   v.CaregiverID,
		CaregiverName: v.CaregiverName,
		ServiceType:   v.ServiceType,
		Start:         v.ScheduledStart,
		End:           v.ScheduledEnd,
		Top:           startMin - visStart,
		Height:        height,
		Unassigned:    v.CaregiverID == nil,
	}
}

func sortBlocks(blocks []VisitBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].Start.Equal(blocks[j].Start) {
			return blocks[i].Start.Before(blocks[j].Start)
		}
		return blocks[i].VisitID.String() < blocks[j].VisitID.String()
	})
}
