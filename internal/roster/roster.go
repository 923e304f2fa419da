// Package roster reads the staff allow-list from an uploaded spreadsheet.
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var ErrMissingColumn = errors.New("missing required column")

// Row problems are collected rather than failing the whole import.
type Skipped struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type Result struct {
	Users   []models.AllowedUser `json:"users"`
	Skipped []Skipped            `json:"skipped"`
}

var (
	emailHeaders = []string{"email", "e-mail", "mail"}
	nameHeaders  = []string{"name", "display name", "displayname"}
	adminHeaders = []string{"admin", "is admin", "role"}
)

// Parse reads a roster from an .xlsx or .xls file. The first row is the
// header; an email column is required, name and admin columns are optional.
func Parse(reader io.Reader, filename string) (Result, error) {
	rows, err := readRows(reader, filename)
	if err != nil {
		return Result{}, err
	}

	headerIndex := map[string]int{}
	for i, header := range rows[0] {
		headerIndex[normalizeHeader(header)] = i
	}
	emailIdx := lookup(headerIndex, emailHeaders)
	if emailIdx < 0 {
		return Result{}, fmt.Errorf("%w: email", ErrMissingColumn)
	}
	nameIdx := lookup(headerIndex, nameHeaders)
	adminIdx := lookup(headerIndex, adminHeaders)

	res := Result{Users: []models.AllowedUser{}, Skipped: []Skipped{}}
	seen := map[string]bool{}
	for i, row := range rows[1:] {
		rowNum := i + 2
		raw := cellValue(row, emailIdx)
		if raw == "" && cellValue(row, nameIdx) == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Row: rowNum, Reason: fmt.Sprintf("invalid email %q", raw)})
			continue
		}
		email := strings.ToLower(addr.Address)
		if seen[email] {
			res.Skipped = append(res.Skipped, Skipped{Row: rowNum, Reason: "duplicate email " + email})
			continue
		}
		seen[email] = true

		name := cellValue(row, nameIdx)
		if name == "" {
			name = addr.Name
		}
		res.Users = append(res.Users, models.AllowedUser{
			Email:       email,
			DisplayName: name,
			IsAdmin:     truthy(cellValue(row, adminIdx)),
		})
	}
	return res, nil
}

func readRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows := workbook.ReadAllCells(10000)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	case ".xlsx", ".xlsm", "":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported roster file type %q", filepath.Ext(filename))
	}
}

func lookup(headerIndex map[string]int, names []string) int {
	for _, n := range names {
		if idx, ok := headerIndex[n]; ok {
			return idx
		}
	}
	return -1
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "admin", "x":
		return true
	}
	return false
}

// Directory is where imported users are saved.
type Directory interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
	PutAllowedUser(ctx context.Context, u models.AllowedUser) error
}

// Import parses a roster and saves every valid row into dir. An import only
// grants admin rights; existing admins stay admins.
func Import(ctx context.Context, dir Directory, reader io.Reader, filename string) (Result, error) {
	res, err := Parse(reader, filename)
	if err != nil {
		return Result{}, err
	}
	for _, u := range res.Users {
		if !u.IsAdmin {
			admin, err := dir.IsAdmin(ctx, u.Email)
			if err != nil {
				return Result{}, err
			}
			u.IsAdmin = admin
		}
		if err := dir.PutAllowedUser(ctx, u); err != nil {
			return Result{}, fmt.Errorf("save %s: %w", u.Email, err)
		}
	}
	return res, nil
}
