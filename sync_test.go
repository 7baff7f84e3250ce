package stattracker_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FiskLee/stattracker"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

// ── L2 ───────────────────────────────────────────────────────────────────────

func TestStore_L2_SharedAcrossStores(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()

	ds1 := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	ds2 := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})

	p := samplePlayer("p1", 4)
	require.NoError(t, ds1.Save(ctx, p))
	assert.True(t, mr.Exists("stattracker:stats:p1"))

	raw, err := mr.Get("stattracker:stats:p1")
	require.NoError(t, err)
	assert.Contains(t, raw, `{"~v~":1,`)

	got, err := ds2.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, int64(1), ds2.Stats().L2Hits)

	ok, err := ds2.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_L2_TTL(t *testing.T) {
	mr := newMiniredis(t)
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr(), DefaultL2TTL: time.Hour})
	require.NoError(t, ds.Save(context.Background(), samplePlayer("p1", 1)))
	assert.Equal(t, time.Hour, mr.TTL("stattracker:stats:p1"))
}

func TestStore_L2_KeyPrefix(t *testing.T) {
	mr := newMiniredis(t)
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr(), RedisKeyPrefix: "srv7"})
	require.NoError(t, ds.Save(context.Background(), samplePlayer("p1", 1)))
	assert.True(t, mr.Exists("srv7:stats:p1"))
}

func TestStore_L2_CorruptPayloadFallsThrough(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()
	ds := newSQLiteStore(t, stattracker.Config{RedisAddr: mr.Addr()})

	p := samplePlayer("p1", 2)
	require.NoError(t, ds.Save(ctx, p))
	require.NoError(t, ds.Invalidate(ctx, "p1"))
	require.NoError(t, mr.Set("stattracker:stats:p1", "not json"))

	got, err := ds.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	raw, err := mr.Get("stattracker:stats:p1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"~v~"`, "L2 is back-filled from L3")
}

func TestStore_L2_CorruptPayloadWithoutL3(t *testing.T) {
	mr := newMiniredis(t)
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	require.NoError(t, mr.Set("stattracker:stats:p1", "{broken"))

	_, err := ds.Load(context.Background(), "p1")
	assert.ErrorIs(t, err, stattracker.ErrDeserialization)
	assert.False(t, mr.Exists("stattracker:stats:p1"))
}

func TestStore_InvalidateAll_WithL2(t *testing.T) {
	mr := newMiniredis(t)
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ds.Save(ctx, samplePlayer(id, 1)))
	}
	require.NoError(t, ds.InvalidateAll(ctx))
	assert.Empty(t, mr.Keys())
	_, err := ds.Load(ctx, "a")
	assert.ErrorIs(t, err, stattracker.ErrNotFound)
}

func TestStore_Ping_WithL2(t *testing.T) {
	mr := newMiniredis(t)
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	require.NoError(t, ds.Ping(context.Background()))
	mr.Close()
	assert.Error(t, ds.Ping(context.Background()))
}

// ── Invalidation via pub/sub ─────────────────────────────────────────────────

func TestSync_Invalidation_CrossStore(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()

	ds1 := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	ds2 := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})

	// wait until both subscribers are attached
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("stattracker:invalidate")) == 1 &&
			mr.PubSubNumSub("stattracker:invalidate")["stattracker:invalidate"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	p := samplePlayer("x1", 1)
	require.NoError(t, ds1.Save(ctx, p))
	pre, err := ds2.Load(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pre.Kills)

	p.RecordKill("rifle", false)
	require.NoError(t, ds1.Save(ctx, p))

	assert.Eventually(t, func() bool {
		got, err := ds2.Load(ctx, "x1")
		return err == nil && got.Kills == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSync_OwnSaveKeepsL1(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()
	ds := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("stattracker:invalidate")["stattracker:invalidate"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ds.Save(ctx, samplePlayer("me", 1)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), ds.Stats().L1Entries)
}

// ── Write-behind ─────────────────────────────────────────────────────────────

func TestSync_WriteBehind_FlushDirty(t *testing.T) {
	ds := newSQLiteStore(t, stattracker.Config{
		WriteMode:                 stattracker.WriteBehind,
		WriteBehindFlushInterval:  time.Hour,
		WriteBehindFlushThreshold: 1000,
	})
	ctx := context.Background()

	require.NoError(t, ds.Save(ctx, samplePlayer("p1", 1)))
	require.NoError(t, ds.Save(ctx, samplePlayer("p2", 2)))
	assert.Equal(t, int64(2), ds.Stats().DirtyCount)

	n, err := ds.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rows are not persisted before a flush")

	got, err := ds.Load(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Kills)

	require.NoError(t, ds.FlushDirty(ctx))
	assert.Zero(t, ds.Stats().DirtyCount)
	n, err = ds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSync_WriteBehind_ThresholdTriggersFlush(t *testing.T) {
	ds := newSQLiteStore(t, stattracker.Config{
		WriteMode:                 stattracker.WriteBehind,
		WriteBehindFlushInterval:  time.Hour,
		WriteBehindFlushThreshold: 3,
	})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ds.Save(ctx, samplePlayer(id, 1)))
	}
	assert.Eventually(t, func() bool {
		n, err := ds.Count(ctx)
		return err == nil && n == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_WriteBehind_FlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	ctx := context.Background()

	ds, err := stattracker.NewStore(stattracker.Config{
		SQLitePath:               path,
		AutoMigrate:              true,
		WriteMode:                stattracker.WriteBehind,
		WriteBehindFlushInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, ds.Save(ctx, samplePlayer("p1", 3)))
	require.NoError(t, ds.Close())

	reopened := newStore(t, stattracker.Config{SQLitePath: path})
	got, err := reopened.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Kills)
}

func TestSync_WriteBehind_DeleteDropsPending(t *testing.T) {
	ds := newSQLiteStore(t, stattracker.Config{
		WriteMode:                stattracker.WriteBehind,
		WriteBehindFlushInterval: time.Hour,
	})
	ctx := context.Background()
	require.NoError(t, ds.Save(ctx, samplePlayer("p1", 1)))
	require.NoError(t, ds.Delete(ctx, "p1"))
	assert.Zero(t, ds.Stats().DirtyCount)

	require.NoError(t, ds.FlushDirty(ctx))
	ok, err := ds.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSync_WriteBehind_WithoutPersistenceActsWriteThrough(t *testing.T) {
	ds := newStore(t, stattracker.Config{WriteMode: stattracker.WriteBehind})
	require.NoError(t, ds.Save(context.Background(), samplePlayer("p1", 1)))
	assert.Zero(t, ds.Stats().DirtyCount)
	require.NoError(t, ds.FlushDirty(context.Background()))
}

func TestStore_LoadMany(t *testing.T) {
	mr := newMiniredis(t)
	ctx := context.Background()
	writer := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	require.NoError(t, writer.SaveMany(ctx, []*stattracker.PlayerStats{
		samplePlayer("a", 1), samplePlayer("b", 2),
	}))

	reader := newStore(t, stattracker.Config{RedisAddr: mr.Addr()})
	got, err := reader.LoadMany(ctx, []string{"a", "b", "ghost", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got["b"].Kills)
	assert.Equal(t, int64(2), reader.Stats().L2Hits)
	assert.Equal(t, int64(1), reader.Stats().L2Misses)

	got, err = reader.LoadMany(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["a"].Kills)
	assert.Equal(t, int64(2), reader.Stats().L2Hits, "second read served from L1")

	_, err = reader.LoadMany(ctx, []string{"a", " "})
	assert.ErrorIs(t, err, stattracker.ErrInvalidID)
}

func TestStore_LoadMany_FallsThroughToPersistence(t *testing.T) {
	ctx := context.Background()
	ds := newSQLiteStore(t, stattracker.Config{})
	require.NoError(t, ds.SaveMany(ctx, []*stattracker.PlayerStats{
		samplePlayer("a", 1), samplePlayer("b", 2), samplePlayer("c", 3),
	}))
	require.NoError(t, ds.InvalidateAll(ctx))

	got, err := ds.LoadMany(ctx, []string{"a", "c", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got["c"].Kills)
	assert.Equal(t, int64(2), ds.Stats().L1Entries)

	empty, err := ds.LoadMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
