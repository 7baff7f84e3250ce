// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// query.go - fluent Query builder for leaderboard pages, consumed by Top
// and WarmCache.

package stattracker

import (
	"fmt"

	"github.com/FiskLee/stattracker/internal/l3"
)

// Column names a leaderboard ordering.
type Column string

// Orderable columns.
const (
	ByPlayerID Column = "player_id"
	ByKills    Column = "kills"
	ByDeaths   Column = "deaths"
	ByPlaytime Column = "playtime_seconds"
	ByUpdated  Column = "updated_at"
)

// Query specifies a page of records for Top.
type Query struct {
	OrderBy Column
	Desc    bool
	Limit   int
	Offset  int
}

// queryBuilder is the fluent builder for Query.
type queryBuilder struct{ q Query }

// Q returns a new fluent query builder.
func Q() *queryBuilder { return &queryBuilder{} }

func (b *queryBuilder) OrderBy(col Column) *queryBuilder { b.q.OrderBy = col; return b }
func (b *queryBuilder) Desc() *queryBuilder              { b.q.Desc = true; return b }
func (b *queryBuilder) Limit(n int) *queryBuilder        { b.q.Limit = n; return b }
func (b *queryBuilder) Offset(n int) *queryBuilder       { b.q.Offset = n; return b }
func (b *queryBuilder) Build() Query                     { return b.q }

// page validates q and converts it to the persistence tier's form.
func (q Query) page() (l3.Page, error) {
	if q.OrderBy != "" && !l3.Sortable(string(q.OrderBy)) {
		return l3.Page{}, fmt.Errorf("%w: %q", ErrUnknownColumn, q.OrderBy)
	}
	return l3.Page{
		OrderBy: string(q.OrderBy),
		Desc:    q.Desc,
		Limit:   q.Limit,
		Offset:  q.Offset,
	}, nil
}
