// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// l3.go - PostgreSQL persistence tier: payload upsert, batched writes,
// leaderboard paging, migration ledger, and optional read-replica routing
// via a secondary pgxpool.

// Package l3 provides the SQL persistence tier for compressed player rows.
package l3

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the L3 PostgreSQL adapter.
type Store struct {
	pool    *pgxpool.Pool
	replica *pgxpool.Pool
	table   string
	quoted  string
}

// New creates a Store over an existing pool. replica may be nil. An empty
// table selects DefaultTable.
func New(pool *pgxpool.Pool, replica *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		pool:    pool,
		replica: replica,
		table:   table,
		quoted:  pgx.Identifier{table}.Sanitize(),
	}
}

// readPool returns the read replica if available, otherwise the primary.
func (s *Store) readPool() *pgxpool.Pool {
	if s.replica != nil {
		return s.replica
	}
	return s.pool
}

// Table returns the unquoted table name.
func (s *Store) Table() string { return s.table }

// Ping verifies the primary pool is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrations() []Migration {
	idx := func(col string) string {
		return pgx.Identifier{s.table + "_" + col + "_idx"}.Sanitize()
	}
	return []Migration{
		{
			Name: "001_create_" + s.table,
			SQL: `CREATE TABLE IF NOT EXISTS ` + s.quoted + ` (
				player_id        TEXT PRIMARY KEY,
				format_version   INTEGER     NOT NULL,
				payload          BYTEA       NOT NULL,
				kills            BIGINT      NOT NULL DEFAULT 0,
				deaths           BIGINT      NOT NULL DEFAULT 0,
				playtime_seconds BIGINT      NOT NULL DEFAULT 0,
				updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Name: "002_index_" + s.table + "_leaderboards",
			SQL: `CREATE INDEX IF NOT EXISTS ` + idx("kills") + ` ON ` + s.quoted + ` (kills DESC);
				CREATE INDEX IF NOT EXISTS ` + idx("playtime") + ` ON ` + s.quoted + ` (playtime_seconds DESC);
				CREATE INDEX IF NOT EXISTS ` + idx("updated") + ` ON ` + s.quoted + ` (updated_at)`,
		},
	}
}

// Migrate creates the ledger if needed and applies every pending migration,
// each in its own transaction. It returns the names applied by this call.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	ledger := pgx.Identifier{MigrationsTable}.Sanitize()
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+ledger+` (
		id         SERIAL PRIMARY KEY,
		name       TEXT UNIQUE NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("l3 migrate ledger: %w", err)
	}

	var applied []string
	for _, m := range s.migrations() {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM `+ledger+` WHERE name = $1)`, m.Name,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("l3 migrate check %s: %w", m.Name, err)
		}
		if exists {
			continue
		}
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+ledger+` (name) VALUES ($1)`, m.Name)
			return err
		}); err != nil {
			return applied, fmt.Errorf("l3 migrate %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// Status lists ledger entries in application order.
func (s *Store) Status(ctx context.Context) ([]Applied, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, applied_at FROM `+pgx.Identifier{MigrationsTable}.Sanitize()+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("l3 status: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Applied, error) {
		var a Applied
		err := r.Scan(&a.Name, &a.AppliedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("l3 status: %w", err)
	}
	return out, nil
}

func (s *Store) upsertSQL() string {
	placeholders := make([]string, len(Columns))
	updates := make([]string, 0, len(Columns)-1)
	for i, col := range Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "player_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (player_id) DO UPDATE SET %s",
		s.quoted,
		strings.Join(Columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

func rowArgs(r Row) []any {
	return []any{r.PlayerID, r.FormatVersion, r.Payload, r.Kills, r.Deaths, r.PlaytimeSeconds, r.UpdatedAt}
}

// Upsert inserts r or replaces the stored row with the same player id.
func (s *Store) Upsert(ctx context.Context, r Row) error {
	if _, err := s.pool.Exec(ctx, s.upsertSQL(), rowArgs(r)...); err != nil {
		return fmt.Errorf("l3 upsert %s: %w", r.PlayerID, err)
	}
	return nil
}

// UpsertMany writes rows in a single pipelined batch.
func (s *Store) UpsertMany(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	sql := s.upsertSQL()
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(sql, rowArgs(r)...)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("l3 upsert batch: %w", err)
	}
	return nil
}

func scanRow(row pgx.Row) (Row, error) {
	var r Row
	err := row.Scan(&r.PlayerID, &r.FormatVersion, &r.Payload, &r.Kills, &r.Deaths, &r.PlaytimeSeconds, &r.UpdatedAt)
	return r, err
}

// Load returns the row for id, or ErrNoRow.
func (s *Store) Load(ctx context.Context, id string) (Row, error) {
	sql := "SELECT " + strings.Join(Columns, ", ") + " FROM " + s.quoted + " WHERE player_id = $1"
	r, err := scanRow(s.readPool().QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, ErrNoRow
		}
		return Row{}, fmt.Errorf("l3 load %s: %w", id, err)
	}
	return r, nil
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM "+s.quoted+" WHERE player_id = $1", id); err != nil {
		return fmt.Errorf("l3 delete %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a row for id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var dummy int
	err := s.readPool().QueryRow(ctx, "SELECT 1 FROM "+s.quoted+" WHERE player_id = $1 LIMIT 1", id).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("l3 exists %s: %w", id, err)
	}
	return true, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.readPool().QueryRow(ctx, "SELECT COUNT(*) FROM "+s.quoted).Scan(&n); err != nil {
		return 0, fmt.Errorf("l3 count: %w", err)
	}
	return n, nil
}

// Top returns one page of rows.
func (s *Store) Top(ctx context.Context, p Page) ([]Row, error) {
	sql, err := p.SelectSQL(s.quoted)
	if err != nil {
		return nil, err
	}
	rows, err := s.readPool().Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("l3 top: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Row, error) { return scanRow(r) })
	if err != nil {
		return nil, fmt.Errorf("l3 top: %w", err)
	}
	return out, nil
}

// Each streams every row ordered by player id. Iteration stops at the first
// error returned by fn.
func (s *Store) Each(ctx context.Context, fn func(Row) error) error {
	rows, err := s.readPool().Query(ctx,
		"SELECT "+strings.Join(Columns, ", ")+" FROM "+s.quoted+" ORDER BY player_id")
	if err != nil {
		return fmt.Errorf("l3 each: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return fmt.Errorf("l3 each: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Pool returns the underlying primary connection pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close shuts down the underlying connection pools.
func (s *Store) Close() error {
	if s.replica != nil {
		s.replica.Close()
	}
	s.pool.Close()
	return nil
}
