// Package timeslot models the half-hour slot grid of a staffing day and the
// collapsing of selected slots into readable "H:MM - H:MM" ranges.
package timeslot

import (
	"sort"
	"strconv"
	"strings"
)

const (
	// CalendarStartHour and CalendarEndHour bound the slots staff can pick.
	CalendarStartHour = 9
	CalendarEndHour   = 21
)

// Grid returns the ordered half-hour labels from startHour:00 to endHour:00
// inclusive. Every call returns a fresh slice.
func Grid(startHour, endHour int) []string {
	if endHour < startHour {
		return []string{}
	}
	labels := make([]string, 0, (endHour-startHour)*2+1)
	for halves := startHour * 2; halves <= endHour*2; halves++ {
		labels = append(labels, formatHalves(halves))
	}
	return labels
}

// Value converts a label such as "13:30" to its numeric half-hour value
// (13.5). Minutes other than 30 count as the top of the hour.
func Value(label string) (float64, bool) {
	halves, ok := parseHalves(label)
	if !ok {
		return 0, false
	}
	return float64(halves) / 2, true
}

// GroupConsecutive collapses labels into closed ranges. Duplicates are
// ignored, runs of adjacent half-hours become one range, and the displayed
// end is the end of the last half-hour block.
//
//	["13:00", "13:30", "18:00", "18:30"] -> ["13:00 - 14:00", "18:00 - 19:00"]
func GroupConsecutive(labels []string) []string {
	values := uniqueHalves(labels)
	if len(values) == 0 {
		return []string{}
	}

	ranges := make([]string, 0, 2)
	start, prev := values[0], values[0]
	for _, v := range values[1:] {
		if v != prev+1 {
			ranges = append(ranges, formatRange(start, prev+1))
			start = v
		}
		prev = v
	}
	return append(ranges, formatRange(start, prev+1))
}

// Join is GroupConsecutive joined with ", ", the form used in lists and
// spreadsheet cells.
func Join(labels []string) string {
	return strings.Join(GroupConsecutive(labels), ", ")
}

// Earliest returns the smallest half-hour value among labels.
func Earliest(labels []string) (float64, bool) {
	values := uniqueHalves(labels)
	if len(values) == 0 {
		return 0, false
	}
	return float64(values[0]) / 2, true
}

func uniqueHalves(labels []string) []int {
	seen := make(map[int]struct{}, len(labels))
	values := make([]int, 0, len(labels))
	for _, label := range labels {
		halves, ok := parseHalves(label)
		if !ok {
			continue
		}
		if _, dup := seen[halves]; dup {
			continue
		}
		seen[halves] = struct{}{}
		values = append(values, halves)
	}
	sort.Ints(values)
	return values
}

func parseHalves(label string) (int, bool) {
	hourText, minuteText, found := strings.Cut(strings.TrimSpace(label), ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	halves := hour * 2
	if minute == 30 {
		halves++
	}
	return halves, true
}

func formatHalves(halves int) string {
	minute := "00"
	if halves%2 == 1 {
		minute = "30"
	}
	return strconv.Itoa(halves/2) + ":" + minute
}

func formatRange(start, end int) string {
	return formatHalves(start) + " - " + formatHalves(end)
}
