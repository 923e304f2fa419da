// Package store persists shift documents, open requests and the staff
// allow-list in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Collections a document can live in.
const (
	Shifts           = "shifts"
	FinalShifts      = "finalShifts"
	RequestedShifts  = "requestedShifts"
	OriginalRequests = "originalRequests"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Filter narrows List. Empty fields match everything; From and To are
// inclusive date bounds compared as strings.
type Filter struct {
	User string
	Date string
	From string
	To   string
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS shift_documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			date TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY(collection, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shift_documents_date ON shift_documents(collection, date);`,
		`CREATE INDEX IF NOT EXISTS idx_shift_documents_user ON shift_documents(collection, owner, date);`,
		`CREATE TABLE IF NOT EXISTS allowed_users (
			email TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS admins (
			email TEXT PRIMARY KEY
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putDocument(ctx context.Context, db execer, collection, id, date, user string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO shift_documents (collection, id, date, owner, data, updated_at)
		VALUES (@collection, @id, @date, @owner, @data, @updated_at)
		ON CONFLICT(collection, id)
		DO UPDATE SET date = excluded.date, owner = excluded.owner, data = excluded.data, updated_at = excluded.updated_at;
	`,
		sql.Named("collection", collection),
		sql.Named("id", id),
		sql.Named("date", date),
		sql.Named("owner", user),
		sql.Named("data", string(data)),
		sql.Named("updated_at", time.Now().UTC().Unix()),
	)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) getDocument(ctx context.Context, collection, id string, dst any) error {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM shift_documents
		WHERE collection = @collection AND id = @id;
	`, sql.Named("collection", collection), sql.Named("id", id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

// Put writes rec into collection, assigning a new id when rec has none.
func (s *Store) Put(ctx context.Context, collection string, rec models.ShiftRecord) (models.ShiftRecord, error) {
	if strings.TrimSpace(rec.Date) == "" || strings.TrimSpace(rec.User) == "" {
		return models.ShiftRecord{}, fmt.Errorf("%w: date and user are required", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := putDocument(ctx, s.db, collection, rec.ID, rec.Date, rec.User, rec); err != nil {
		return models.ShiftRecord{}, err
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (models.ShiftRecord, error) {
	var rec models.ShiftRecord
	if err := s.getDocument(ctx, collection, id, &rec); err != nil {
		return models.ShiftRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM shift_documents
		WHERE collection = @collection AND id = @id;
	`, sql.Named("collection", collection), sql.Named("id", id))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the records of collection matching f, ordered by date and
// then by insertion.
func (s *Store) List(ctx context.Context, collection string, f Filter) ([]models.ShiftRecord, error) {
	var docs []models.ShiftRecord
	err := s.listDocuments(ctx, collection, f, func(id string, data []byte) error {
		var rec models.ShiftRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		rec.ID = id
		docs = append(docs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) listDocuments(ctx context.Context, collection string, f Filter, each func(id string, data []byte) error) error {
	clauses := []string{"collection = @collection"}
	args := []any{sql.Named("collection", collection)}
	if f.User != "" {
		clauses = append(clauses, "owner = @owner")
		args = append(args, sql.Named("owner", f.User))
	}
	if f.Date != "" {
		clauses = append(clauses, "date = @date")
		args = append(args, sql.Named("date", f.Date))
	}
	if f.From != "" {
		clauses = append(clauses, "date >= @from")
		args = append(args, sql.Named("from", f.From))
	}
	if f.To != "" {
		clauses = append(clauses, "date <= @to")
		args = append(args, sql.Named("to", f.To))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data FROM shift_documents
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY date, rowid;
	`, args...)
	if err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("list %s: %w", collection, err)
		}
		if err := each(id, []byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}

// MonthRecords returns the records of collection dated within year/month,
// using the "YYYY-MM-01".."YYYY-MM-31" string bounds.
func (s *Store) MonthRecords(ctx context.Context, collection string, year, month int) ([]models.ShiftRecord, error) {
	if err := models.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	from, to := models.MonthBounds(year, month)
	return s.List(ctx, collection, Filter{From: from, To: to})
}

// SubmitAvailability stores a person's availability for a date. A second
// submission for the same date and user replaces the first.
func (s *Store) SubmitAvailability(ctx context.Context, rec models.ShiftRecord) (models.ShiftRecord, error) {
	if rec.User == "" || rec.Date == "" {
		return models.ShiftRecord{}, fmt.Errorf("%w: date and user are required", ErrInvalidRecord)
	}
	existing, err := s.List(ctx, Shifts, Filter{User: rec.User, Date: rec.Date})
	if err != nil {
		return models.ShiftRecord{}, err
	}
	if len(existing) > 0 {
		rec.ID = existing[0].ID
	} else {
		rec.ID = ""
	}
	rec.ConfirmedBy = ""
	rec.ConfirmedAt = nil
	return s.Put(ctx, Shifts, rec)
}

// Confirm copies an availability document into the final schedule.
func (s *Store) Confirm(ctx context.Context, shiftID, confirmedBy string, at time.Time) (models.ShiftRecord, error) {
	rec, err := s.Get(ctx, Shifts, shiftID)
	if err != nil {
		return models.ShiftRecord{}, err
	}
	at = at.UTC()
	rec.ConfirmedBy = confirmedBy
	rec.ConfirmedAt = &at
	return s.Put(ctx, FinalShifts, rec)
}

// PutRequest writes an open request, assigning an id when it has none.
func (s *Store) PutRequest(ctx context.Context, req models.RequestedShift) (models.RequestedShift, error) {
	if strings.TrimSpace(req.Date) == "" {
		return models.RequestedShift{}, fmt.Errorf("%w: date is required", ErrInvalidRecord)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if err := putDocument(ctx, s.db, RequestedShifts, req.ID, req.Date, "", req); err != nil {
		return models.RequestedShift{}, err
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (models.RequestedShift, error) {
	var req models.RequestedShift
	if err := s.getDocument(ctx, RequestedShifts, id, &req); err != nil {
		return models.RequestedShift{}, err
	}
	req.ID = id
	return req, nil
}

// ListRequests returns requests from collection (RequestedShifts or
// OriginalRequests) dated on or after from.
func (s *Store) ListRequests(ctx context.Context, collection, from string) ([]models.RequestedShift, error) {
	var out []models.RequestedShift
	err := s.listDocuments(ctx, collection, Filter{From: from}, func(id string, data []byte) error {
		var req models.RequestedShift
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		req.ID = id
		out = append(out, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Volunteer records user as available for an open request. The availability
// document reuses the request's id, date and times.
func (s *Store) Volunteer(ctx context.Context, requestID, user, displayName string) (models.ShiftRecord, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return models.ShiftRecord{}, err
	}
	return s.Put(ctx, Shifts, models.ShiftRecord{
		ID:          req.ID,
		Date:        req.Date,
		User:        user,
		DisplayName: displayName,
		Times:       req.Times,
		Memo:        req.Memo,
	})
}

// SnapshotRequests copies every open request dated on or after from into
// OriginalRequests in one transaction and returns how many were copied.
func (s *Store) SnapshotRequests(ctx context.Context, from string) (int, error) {
	requests, err := s.ListRequests(ctx, RequestedShifts, from)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, req := range requests {
		if err := putDocument(ctx, tx, OriginalRequests, req.ID, req.Date, "", req); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}
	return len(requests), nil
}
