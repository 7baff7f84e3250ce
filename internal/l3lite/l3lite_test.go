package l3lite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/FiskLee/stattracker/internal/l3"
	"github.com/FiskLee/stattracker/internal/l3lite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *l3lite.Store {
	t.Helper()
	s, err := l3lite.Open(filepath.Join(t.TempDir(), "stats.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	require.Len(t, applied, 2)
	return s
}

func row(id string, kills int64) l3.Row {
	return l3.Row{
		PlayerID:        id,
		FormatVersion:   1,
		Payload:         []byte(fmt.Sprintf(`{"~v~":1,"~1000~":%d}`, kills)),
		Kills:           kills,
		Deaths:          kills / 2,
		PlaytimeSeconds: kills * 60,
		UpdatedAt:       time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC),
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := l3lite.Open("  ", "")
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := l3lite.Open(":memory:", "mem_stats")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "mem_stats", s.Table())

	ctx := context.Background()
	_, err = s.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, row("m", 1)))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	again, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "001_create_player_stats", status[0].Name)
	assert.Equal(t, "002_index_player_stats_leaderboards", status[1].Name)
}

func TestUpsertLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	want := row("p1", 10)
	require.NoError(t, s.Upsert(ctx, want))
	got, err := s.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Kills = 42
	want.Payload = []byte(`{"~v~":1,"~1000~":42}`)
	require.NoError(t, s.Upsert(ctx, want))
	got, err = s.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Missing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Load(context.Background(), "ghost")
	assert.True(t, errors.Is(err, l3.ErrNoRow))
}

func TestDeleteExists(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, row("d", 1)))

	ok, err := s.Exists(ctx, "d")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "d"))
	require.NoError(t, s.Delete(ctx, "d"))
	ok, err = s.Exists(ctx, "d")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertManyTop(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	var rows []l3.Row
	for i := 0; i < 12; i++ {
		rows = append(rows, row(fmt.Sprintf("p%02d", i), int64(i*3)))
	}
	require.NoError(t, s.UpsertMany(ctx, rows))
	require.NoError(t, s.UpsertMany(ctx, nil))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	top, err := s.Top(ctx, l3.Page{OrderBy: "kills", Desc: true, Limit: 3})
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"p11", "p10", "p09"}, []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID})

	next, err := s.Top(ctx, l3.Page{OrderBy: "kills", Desc: true, Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, "p08", next[0].PlayerID)

	asc, err := s.Top(ctx, l3.Page{OrderBy: "playtime_seconds", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "p00", asc[0].PlayerID)

	_, err = s.Top(ctx, l3.Page{OrderBy: "payload"})
	assert.ErrorIs(t, err, l3.ErrUnknownColumn)
}

func TestEach(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertMany(ctx, []l3.Row{row("b", 1), row("a", 2), row("c", 3)}))

	var ids []string
	require.NoError(t, s.Each(ctx, func(r l3.Row) error {
		ids = append(ids, r.PlayerID)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	stop := errors.New("stop")
	assert.ErrorIs(t, s.Each(ctx, func(l3.Row) error { return stop }), stop)
}

func TestCloseNil(t *testing.T) {
	var s *l3lite.Store
	assert.NoError(t, s.Close())
}
