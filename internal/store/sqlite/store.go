// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/palantir/business-contact-pipeline/internal/leads"
	"github.com/palantir/business-contact-pipeline/internal/store"
	"github.com/palantir/business-contact-pipeline/internal/store/sqlite/migrations"
)

// DefaultListLimit bounds ListSearches when no limit is given.
const DefaultListLimit = 50

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and applies migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) CreateSearch(ctx context.Context, area, sector string) (leads.Search, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO searches (area, sector, status, total_results, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, area, sector, string(leads.StatusPending), now, now)
	if err != nil {
		return leads.Search{}, fmt.Errorf("inserting search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return leads.Search{}, fmt.Errorf("reading search id: %w", err)
	}
	return leads.Search{
		ID:        id,
		Area:      area,
		Sector:    sector,
		Status:    leads.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const searchColumns = `id, area, sector, status, total_results, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSearch(row scanner) (leads.Search, error) {
	var (
		s      leads.Search
		status string
		errMsg sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Area, &s.Sector, &status, &s.TotalResults, &errMsg, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return leads.Search{}, err
	}
	s.Status = leads.Status(status)
	s.ErrorMessage = errMsg.String
	return s, nil
}

func (s *Store) GetSearch(ctx context.Context, id int64) (leads.Search, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+searchColumns+` FROM searches WHERE id = ?`, id)
	search, err := scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leads.Search{}, fmt.Errorf("search %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return leads.Search{}, fmt.Errorf("getting search %d: %w", id, err)
	}
	return search, nil
}

// UpdateSearch applies the non-nil fields of u. A search in a terminal state
// is never moved to another status.
func (s *Store) UpdateSearch(ctx context.Context, id int64, u leads.SearchUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{s.now()}
	if u.Status != nil {
		if !u.Status.Valid() {
			return fmt.Errorf("invalid status %q", *u.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.TotalResults != nil {
		sets = append(sets, "total_results = ?")
		args = append(args, *u.TotalResults)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}

	query := `UPDATE searches SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)
	if u.Status != nil {
		query += ` AND (status NOT IN ('completed', 'failed') OR status = ?)`
		args = append(args, string(*u.Status))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating search %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating search %d: %w", id, err)
	}
	if n == 0 {
		if _, err := s.GetSearch(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("search %d is already finished", id)
	}
	return nil
}

// ListSearches returns the most recent searches first.
func (s *Store) ListSearches(ctx context.Context, limit int) ([]leads.Search, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+searchColumns+` FROM searches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing searches: %w", err)
	}
	defer rows.Close()

	out := []leads.Search{}
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		out = append(out, search)
	}
	return out, rows.Err()
}

func (s *Store) AddContactResult(ctx context.Context, searchID int64, r leads.ContactResult) (int64, error) {
	origin := r.Origin
	if origin == "" {
		origin = leads.OriginRegex
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_results
			(search_id, business_name, website, email, phone, address, city, postal_code, email_source, email_origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		searchID, r.BusinessName, nullString(r.Website), r.Email, nullString(r.Phone), nullString(r.Address),
		nullString(r.City), nullString(r.PostalCode), nullString(r.EmailSource), string(origin), s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting contact result: %w", err)
	}
	return res.LastInsertId()
}

// ListContactResults returns a search's results in insertion order.
func (s *Store) ListContactResults(ctx context.Context, searchID int64) ([]leads.ContactResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_id, business_name, website, email, phone, address, city, postal_code, email_source, email_origin, created_at
		FROM contact_results WHERE search_id = ? ORDER BY id ASC
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("listing contact results: %w", err)
	}
	defer rows.Close()

	out := []leads.ContactResult{}
	for rows.Next() {
		var (
			r                                                      leads.ContactResult
			website, phone, address, city, postal, source, origin sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SearchID, &r.BusinessName, &website, &r.Email, &phone, &address, &city, &postal, &source, &origin, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact result: %w", err)
		}
		r.Website = website.String
		r.Phone = phone.String
		r.Address = address.String
		r.City = city.String
		r.PostalCode = postal.String
		r.EmailSource = source.String
		r.Origin = leads.EmailOrigin(origin.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteSearch removes a search and, through the foreign key, its results.
func (s *Store) DeleteSearch(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM searches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting search %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("search %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
