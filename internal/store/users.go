package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Takeru-Ono/Kotomoshi-shift-manager/internal/models"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PutAllowedUser adds or updates a staff member and their admin flag.
func (s *Store) PutAllowedUser(ctx context.Context, u models.AllowedUser) error {
	email := normalizeEmail(u.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidRecord)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO allowed_users (email, display_name, created_at)
		VALUES (@email, @display_name, @created_at)
		ON CONFLICT(email)
		DO UPDATE SET display_name = excluded.display_name;
	`,
		sql.Named("email", email),
		sql.Named("display_name", strings.TrimSpace(u.DisplayName)),
		sql.Named("created_at", time.Now().UTC().Unix()),
	)
	if err != nil {
		return fmt.Errorf("write allowed user %s: %w", email, err)
	}
	if err := setAdmin(ctx, tx, email, u.IsAdmin); err != nil {
		return err
	}
	return tx.Commit()
}

// SetAdmin grants or revokes admin rights without touching the allow-list.
func (s *Store) SetAdmin(ctx context.Context, email string, admin bool) error {
	return setAdmin(ctx, s.db, normalizeEmail(email), admin)
}

func setAdmin(ctx context.Context, db execer, email string, admin bool) error {
	query := `DELETE FROM admins WHERE email = @email;`
	if admin {
		query = `INSERT INTO admins (email) VALUES (@email) ON CONFLICT(email) DO NOTHING;`
	}
	if _, err := db.ExecContext(ctx, query, sql.Named("email", email)); err != nil {
		return fmt.Errorf("update admin %s: %w", email, err)
	}
	return nil
}

func (s *Store) GetAllowedUser(ctx context.Context, email string) (models.AllowedUser, error) {
	var u models.AllowedUser
	var admin int
	err := s.db.QueryRowContext(ctx, `
		SELECT u.email, u.display_name, CASE WHEN a.email IS NULL THEN 0 ELSE 1 END
		FROM allowed_users u
		LEFT JOIN admins a ON a.email = u.email
		WHERE u.email = @email;
	`, sql.Named("email", normalizeEmail(email))).Scan(&u.Email, &u.DisplayName, &admin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AllowedUser{}, ErrNotFound
	}
	if err != nil {
		return models.AllowedUser{}, fmt.Errorf("read allowed user: %w", err)
	}
	u.IsAdmin = admin == 1
	return u, nil
}

func (s *Store) ListAllowedUsers(ctx context.Context) ([]models.AllowedUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email, u.display_name, CASE WHEN a.email IS NULL THEN 0 ELSE 1 END
		FROM allowed_users u
		LEFT JOIN admins a ON a.email = u.email
		ORDER BY u.email;
	`)
	if err != nil {
		return nil, fmt.Errorf("list allowed users: %w", err)
	}
	defer rows.Close()

	var users []models.AllowedUser
	for rows.Next() {
		var u models.AllowedUser
		var admin int
		if err := rows.Scan(&u.Email, &u.DisplayName, &admin); err != nil {
			return nil, fmt.Errorf("list allowed users: %w", err)
		}
		u.IsAdmin = admin == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) DeleteAllowedUser(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	res, err := s.db.ExecContext(ctx, `DELETE FROM allowed_users WHERE email = @email;`, sql.Named("email", email))
	if err != nil {
		return fmt.Errorf("delete allowed user %s: %w", email, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return setAdmin(ctx, s.db, email, false)
}

// IsAllowed reports whether email may use the app. Admins are always
// allowed.
func (s *Store) IsAllowed(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM allowed_users WHERE email = @email) +
			(SELECT COUNT(*) FROM admins WHERE email = @email);
	`, sql.Named("email", normalizeEmail(email))).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check allowed user: %w", err)
	}
	return n > 0, nil
}

func (s *Store) IsAdmin(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE email = @email;`, sql.Named("email", normalizeEmail(email))).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return n > 0, nil
}
