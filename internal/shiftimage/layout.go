package shiftimage

import (
	"math"
	"sort"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/timeslot"
)

const (
	Width        = 900
	RowHeight    = 36
	HeaderHeight = 60

	// MaxRows bounds the table so a runaway query cannot allocate an
	// arbitrarily tall canvas.
	MaxRows = 500

	startHour = 11
	endHour   = 21
)

// Slots nobody is expected to cover: opening setup and closing.
var exemptSlots = map[string]struct{}{
	"11:00": {},
	"11:30": {},
	"12:00": {},
	"20:30": {},
	"21:00": {},
}

// DateGroup is every record for one date, ordered by earliest slot, plus
// the slot columns nobody covers.
type DateGroup struct {
	Date    string
	Records []models.ShiftRecord
	Gap     []int
}

// HasGapRow reports whether the group gets the extra nameless alert row.
func (g DateGroup) HasGapRow() bool {
	return len(g.Gap) > 0
}

// RowCount is the number of table rows the group occupies.
func (g DateGroup) RowCount() int {
	if g.HasGapRow() {
		return len(g.Records) + 1
	}
	return len(g.Records)
}

// Layout is the table a set of records renders to.
type Layout struct {
	Slots  []string
	Groups []DateGroup
	Rows   int
	Height int
}

// Plan groups records by date in first-seen order, sorts each group by its
// earliest slot and computes coverage gaps and the image height. Records are
// not modified.
func Plan(records []models.ShiftRecord) Layout {
	slots := timeslot.Grid(startHour, endHour)

	var groups []DateGroup
	index := map[string]int{}
	for _, rec := range records {
		i, ok := index[rec.Date]
		if !ok {
			i = len(groups)
			index[rec.Date] = i
			groups = append(groups, DateGroup{Date: rec.Date})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}

	rows := 0
	for i := range groups {
		g := &groups[i]
		sort.SliceStable(g.Records, func(a, b int) bool {
			return earliest(g.Records[a]) < earliest(g.Records[b])
		})
		g.Gap = coverageGap(slots, g.Records)
		rows += g.RowCount()
	}

	return Layout{
		Slots:  slots,
		Groups: groups,
		Rows:   rows,
		Height: HeaderHeight + rows*RowHeight,
	}
}

func earliest(rec models.ShiftRecord) float64 {
	v, ok := timeslot.Earliest(rec.Times)
	if !ok {
		return math.Inf(1)
	}
	return v
}

func coverageGap(slots []string, records []models.ShiftRecord) []int {
	var gap []int
	for col, slot := range slots {
		if _, exempt := exemptSlots[slot]; exempt {
			continue
		}
		covered := false
		for _, rec := range records {
			if rec.Times.Contains(slot) {
				covered = true
				break
			}
		}
		if !covered {
			gap = append(gap, col)
		}
	}
	return gap
}
