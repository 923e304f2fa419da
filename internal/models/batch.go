package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidMonth = errors.New("invalid year or month")

// MonthlyBatch is the confirmed schedule of one calendar month, already
// filtered to that month and ordered by date.
type MonthlyBatch struct {
	Year    int
	Month   int
	Records []ShiftRecord
}

// NewMonthlyBatch keeps the records dated inside year/month and sorts them
// by date. Records on the same date keep their relative order.
func NewMonthlyBatch(year, month int, records []ShiftRecord) (MonthlyBatch, error) {
	if err := ValidateMonth(year, month); err != nil {
		return MonthlyBatch{}, err
	}
	prefix := MonthPrefix(year, month) + "-"
	kept := make([]ShiftRecord, 0, len(records))
	for _, rec := range records {
		if strings.HasPrefix(rec.Date, prefix) {
			kept = append(kept, rec)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Date < kept[j].Date
	})
	return MonthlyBatch{Year: year, Month: month, Records: kept}, nil
}

// ValidateMonth rejects months outside 1..12 and non-positive years.
func ValidateMonth(year, month int) error {
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, month)
	}
	return nil
}

// MonthPrefix formats year and month as "YYYY-MM".
func MonthPrefix(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthBounds returns the inclusive lexicographic date bounds used to query
// a month: "YYYY-MM-01" and "YYYY-MM-31".
func MonthBounds(year, month int) (string, string) {
	prefix := MonthPrefix(year, month)
	return prefix + "-01", prefix + "-31"
}
