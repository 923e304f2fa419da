package delivery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/timeslot"
	"github.com/xuri/excelize/v2"
)

var ErrSheetNotFound = errors.New("month sheet not found in workbook")

// Sheet layout: staff names down column B, one date header per two columns
// along row 1 starting at C.
const (
	firstNameRow  = 3
	lastNameRow   = 10
	firstDateCol  = 3  // C
	lastDateCol   = 37 // AK
	lastClearCol  = 39 // AM
	dateColStride = 2
)

var (
	shortDatePattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
	longDatePattern  = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
)

// CellWrite is one schedule value placed in the sheet.
type CellWrite struct {
	Name  string `json:"name"`
	Date  string `json:"date"`
	Value string `json:"value"`
	Cell  string `json:"cell"`
}

// Unmatched is a record whose name or date has no place in the sheet.
type Unmatched struct {
	Name   string `json:"name"`
	Date   string `json:"date"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

type SheetReport struct {
	Sheet     string      `json:"sheet"`
	Written   []CellWrite `json:"written"`
	Unmatched []Unmatched `json:"unmatched"`
}

// Workbook reconciles confirmed months into an .xlsx file prepared with one
// sheet per month named YYYYMM.
type Workbook struct {
	Path string
}

func NewWorkbook(path string) *Workbook {
	return &Workbook{Path: strings.TrimSpace(path)}
}

// SheetName is the sheet holding year/month.
func SheetName(year, month int) string {
	return fmt.Sprintf("%04d%02d", year, month)
}

// WriteMonth clears the schedule cells of the month's sheet and writes one
// grouped time-range string per (name, date) found in the sheet.
func (w *Workbook) WriteMonth(ctx context.Context, batch models.MonthlyBatch) (SheetReport, error) {
	if w == nil || w.Path == "" {
		return SheetReport{}, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return SheetReport{}, err
	}

	f, err := excelize.OpenFile(w.Path)
	if err != nil {
		return SheetReport{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := SheetName(batch.Year, batch.Month)
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return SheetReport{}, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	names, err := readNames(f, sheet)
	if err != nil {
		return SheetReport{}, err
	}
	dates, err := readDates(f, sheet, batch.Year, batch.Month)
	if err != nil {
		return SheetReport{}, err
	}

	if err := clearSchedule(f, sheet); err != nil {
		return SheetReport{}, err
	}

	report := SheetReport{Sheet: sheet, Written: []CellWrite{}, Unmatched: []Unmatched{}}
	for _, rec := range batch.Records {
		name := strings.TrimSpace(rec.Name())
		date := strings.ReplaceAll(rec.Date, "-", "/")
		value := timeslot.Join(rec.Times)

		row, nameOK := names[name]
		col, dateOK := dates[date]
		if !nameOK || !dateOK {
			report.Unmatched = append(report.Unmatched, Unmatched{
				Name:   name,
				Date:   date,
				Value:  value,
				Reason: unmatchedReason(nameOK, dateOK),
			})
			continue
		}

		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return SheetReport{}, err
		}
		if err := f.SetCellStr(sheet, cell, value); err != nil {
			return SheetReport{}, fmt.Errorf("write %s!%s: %w", sheet, cell, err)
		}
		report.Written = append(report.Written, CellWrite{Name: name, Date: date, Value: value, Cell: cell})
	}

	if err := f.Save(); err != nil {
		return SheetReport{}, fmt.Errorf("save workbook: %w", err)
	}
	return report, nil
}

func unmatchedReason(nameOK, dateOK bool) string {
	switch {
	case !nameOK && !dateOK:
		return "name and date not in sheet"
	case !nameOK:
		return "name not in sheet"
	default:
		return "date not in sheet"
	}
}

// readNames maps each trimmed name in B3:B10 to its row.
func readNames(f *excelize.File, sheet string) (map[string]int, error) {
	names := map[string]int{}
	for row := firstNameRow; row <= lastNameRow; row++ {
		cell, _ := excelize.CoordinatesToCellName(2, row)
		v, err := f.GetCellValue(sheet, cell)
		if err != nil {
			return nil, fmt.Errorf("read %s!%s: %w", sheet, cell, err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, seen := names[v]; !seen {
			names[v] = row
		}
	}
	return names, nil
}

// readDates maps each normalised row-1 date header to its column.
func readDates(f *excelize.File, sheet string, year, month int) (map[string]int, error) {
	dates := map[string]int{}
	for col := firstDateCol; col <= lastDateCol; col += dateColStride {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		v, err := f.GetCellValue(sheet, cell)
		if err != nil {
			return nil, fmt.Errorf("read %s!%s: %w", sheet, cell, err)
		}
		v = NormalizeSheetDate(v, year, month)
		if v == "" {
			continue
		}
		if _, seen := dates[v]; !seen {
			dates[v] = col
		}
	}
	return dates, nil
}

func clearSchedule(f *excelize.File, sheet string) error {
	for col := firstDateCol; col <= lastClearCol; col += dateColStride {
		for row := firstNameRow; row <= lastNameRow; row++ {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if err := f.SetCellStr(sheet, cell, ""); err != nil {
				return fmt.Errorf("clear %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// NormalizeSheetDate turns "MM/DD" (within year/month) and "YYYY/M/D" headers
// into "YYYY/MM/DD". Anything else is returned trimmed and unchanged.
func NormalizeSheetDate(v string, year, month int) string {
	v = strings.TrimSpace(v)
	if shortDatePattern.MatchString(v) {
		return fmt.Sprintf("%04d/%02d/%s", year, month, v[len(v)-2:])
	}
	if m := longDatePattern.FindStringSubmatch(v); m != nil {
		mm, _ := strconv.Atoi(m[2])
		dd, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%s/%02d/%02d", m[1], mm, dd)
	}
	return v
}
