// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// model.go - row shape and query helpers shared by the SQL persistence
// backends.

package l3

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTable is the table player rows live in unless configured otherwise.
const DefaultTable = "player_stats"

// DefaultLimit caps Top when the caller passes no limit.
const DefaultLimit = 100

// MigrationsTable is the ledger of applied schema migrations.
const MigrationsTable = "_stattracker_migrations"

var (
	// ErrNoRow is returned by Load when the player has no stored row.
	ErrNoRow = errors.New("l3: no row")
	// ErrUnknownColumn is returned when a page orders by a column that is not
	// indexed for sorting.
	ErrUnknownColumn = errors.New("l3: unknown order column")
)

// Row is one persisted player record. Payload holds the compressed (and
// possibly sealed) stats document; the numeric columns are denormalized
// copies used for leaderboards.
type Row struct {
	PlayerID        string
	FormatVersion   int
	Payload         []byte
	Kills           int64
	Deaths          int64
	PlaytimeSeconds int64
	UpdatedAt       time.Time
}

// Columns lists the table columns in Row field order.
var Columns = []string{
	"player_id",
	"format_version",
	"payload",
	"kills",
	"deaths",
	"playtime_seconds",
	"updated_at",
}

var sortable = map[string]struct{}{
	"player_id":        {},
	"kills":            {},
	"deaths":           {},
	"playtime_seconds": {},
	"updated_at":       {},
}

// Sortable reports whether col may be used in Page.OrderBy.
func Sortable(col string) bool {
	_, ok := sortable[col]
	return ok
}

// Page selects a window of rows ordered by one column. Ties break on
// player_id so paging is stable.
type Page struct {
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// SelectSQL renders the SELECT for p against the already-quoted table name.
func (p Page) SelectSQL(quotedTable string) (string, error) {
	col := p.OrderBy
	if col == "" {
		col = "player_id"
	}
	if !Sortable(col) {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, col)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quotedTable)
	fmt.Fprintf(&b, " ORDER BY %s %s", col, dir)
	if col != "player_id" {
		b.WriteString(", player_id ASC")
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	return b.String(), nil
}

// Migration is one named, idempotent schema step.
type Migration struct {
	Name string
	SQL  string
}

// Applied is one ledger entry.
type Applied struct {
	Name      string
	AppliedAt time.Time
}
