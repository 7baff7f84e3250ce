// Package l3lite is the embedded SQLite persistence tier. It stores the same
// rows as the PostgreSQL tier so single-node deployments need no database
// server.
package l3lite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/FiskLee/stattracker/internal/l3"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for player rows.
type Store struct {
	db     *sql.DB
	table  string
	quoted string
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database limited to a single connection.
func Open(path, table string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("l3lite: storage path is required")
	}
	if table == "" {
		table = l3.DefaultTable
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("l3lite: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("l3lite: ping: %w", err)
	}
	return &Store{db: db, table: table, quoted: quote(table)}, nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Table returns the unquoted table name.
func (s *Store) Table() string { return s.table }

// Ping verifies the database handle is usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrations() []l3.Migration {
	return []l3.Migration{
		{
			Name: "001_create_" + s.table,
			SQL: `CREATE TABLE IF NOT EXISTS ` + s.quoted + ` (
				player_id        TEXT PRIMARY KEY,
				format_version   INTEGER NOT NULL,
				payload          BLOB    NOT NULL,
				kills            INTEGER NOT NULL DEFAULT 0,
				deaths           INTEGER NOT NULL DEFAULT 0,
				playtime_seconds INTEGER NOT NULL DEFAULT 0,
				updated_at       INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			Name: "002_index_" + s.table + "_leaderboards",
			SQL: `CREATE INDEX IF NOT EXISTS ` + quote(s.table+"_kills_idx") + ` ON ` + s.quoted + ` (kills DESC);
				CREATE INDEX IF NOT EXISTS ` + quote(s.table+"_playtime_idx") + ` ON ` + s.quoted + ` (playtime_seconds DESC);
				CREATE INDEX IF NOT EXISTS ` + quote(s.table+"_updated_idx") + ` ON ` + s.quoted + ` (updated_at)`,
		},
	}
}

// Migrate applies pending migrations and records them in the ledger.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	ledger := quote(l3.MigrationsTable)
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledger+` (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT UNIQUE NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("l3lite migrate ledger: %w", err)
	}

	var applied []string
	for _, m := range s.migrations() {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+ledger+` WHERE name = ?`, m.Name).Scan(&n); err != nil {
			return applied, fmt.Errorf("l3lite migrate check %s: %w", m.Name, err)
		}
		if n > 0 {
			continue
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO `+ledger+` (name, applied_at) VALUES (?, ?)`,
				m.Name, time.Now().UTC().UnixMilli())
			return err
		}); err != nil {
			return applied, fmt.Errorf("l3lite migrate %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// Status lists ledger entries in application order.
func (s *Store) Status(ctx context.Context) ([]l3.Applied, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, applied_at FROM `+quote(l3.MigrationsTable)+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("l3lite status: %w", err)
	}
	defer rows.Close()
	var out []l3.Applied
	for rows.Next() {
		var a l3.Applied
		var ms int64
		if err := rows.Scan(&a.Name, &ms); err != nil {
			return nil, fmt.Errorf("l3lite status: %w", err)
		}
		a.AppliedAt = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) upsertSQL() string {
	updates := make([]string, 0, len(l3.Columns)-1)
	for _, col := range l3.Columns[1:] {
		updates = append(updates, col+" = excluded."+col)
	}
	return "INSERT INTO " + s.quoted + " (" + strings.Join(l3.Columns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(l3.Columns)), ", ") +
		") ON CONFLICT (player_id) DO UPDATE SET " + strings.Join(updates, ", ")
}

func rowArgs(r l3.Row) []any {
	return []any{r.PlayerID, r.FormatVersion, r.Payload, r.Kills, r.Deaths, r.PlaytimeSeconds, r.UpdatedAt.UTC().UnixMilli()}
}

// Upsert inserts r or replaces the stored row with the same player id.
func (s *Store) Upsert(ctx context.Context, r l3.Row) error {
	if _, err := s.db.ExecContext(ctx, s.upsertSQL(), rowArgs(r)...); err != nil {
		return fmt.Errorf("l3lite upsert %s: %w", r.PlayerID, err)
	}
	return nil
}

// UpsertMany writes rows in one transaction.
func (s *Store) UpsertMany(ctx context.Context, rows []l3.Row) error {
	if len(rows) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, rowArgs(r)...); err != nil {
				return fmt.Errorf("%s: %w", r.PlayerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("l3lite upsert batch: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (l3.Row, error) {
	var r l3.Row
	var ms int64
	if err := sc.Scan(&r.PlayerID, &r.FormatVersion, &r.Payload, &r.Kills, &r.Deaths, &r.PlaytimeSeconds, &ms); err != nil {
		return l3.Row{}, err
	}
	r.UpdatedAt = time.UnixMilli(ms).UTC()
	return r, nil
}

// Load returns the row for id, or l3.ErrNoRow.
func (s *Store) Load(ctx context.Context, id string) (l3.Row, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		"SELECT "+strings.Join(l3.Columns, ", ")+" FROM "+s.quoted+" WHERE player_id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l3.Row{}, l3.ErrNoRow
		}
		return l3.Row{}, fmt.Errorf("l3lite load %s: %w", id, err)
	}
	return r, nil
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.quoted+" WHERE player_id = ?", id); err != nil {
		return fmt.Errorf("l3lite delete %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a row for id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.quoted+" WHERE player_id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("l3lite exists %s: %w", id, err)
	}
	return n > 0, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.quoted).Scan(&n); err != nil {
		return 0, fmt.Errorf("l3lite count: %w", err)
	}
	return n, nil
}

// Top returns one page of rows.
func (s *Store) Top(ctx context.Context, p l3.Page) ([]l3.Row, error) {
	q, err := p.SelectSQL(s.quoted)
	if err != nil {
		return nil, err
	}
	var out []l3.Row
	err = s.each(ctx, q, func(r l3.Row) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("l3lite top: %w", err)
	}
	return out, nil
}

// Each streams every row ordered by player id. Iteration stops at the first
// error returned by fn.
func (s *Store) Each(ctx context.Context, fn func(l3.Row) error) error {
	return s.each(ctx,
		"SELECT "+strings.Join(l3.Columns, ", ")+" FROM "+s.quoted+" ORDER BY player_id", fn)
}

func (s *Store) each(ctx context.Context, q string, fn func(l3.Row) error) error {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
