package stattracker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FiskLee/stattracker/internal/codec"
	"github.com/FiskLee/stattracker/internal/l3"
)

const (
	opSet           = "set"
	opDelete        = "delete"
	opInvalidateAll = "invalidate_all"
)

// invalidationMsg is the Redis pub/sub payload for L1 invalidation.
type invalidationMsg struct {
	Origin string `json:"origin"`
	ID     string `json:"id,omitempty"`
	Op     string `json:"op"` // "set" | "delete" | "invalidate_all"
}

// dirtyEntry holds a row pending write-behind flush to L3.
type dirtyEntry struct {
	row     l3.Row
	retries int
	lastErr error
}

// syncEngine manages L1 invalidation (Redis pub/sub) and write-behind flushing.
type syncEngine struct {
	ds         *Store
	node       string
	flushMu    sync.Mutex // held by flushDirty and by deletes reaching L3
	dirtyMu    sync.Mutex
	dirty      map[string]*dirtyEntry
	dirtyCount atomic.Int64
	stopCh     chan struct{}
	flushCh    chan struct{}
	wg         sync.WaitGroup
}

func newSyncEngine(ds *Store) *syncEngine {
	return &syncEngine{
		ds:      ds,
		node:    newNodeID(),
		dirty:   make(map[string]*dirtyEntry),
		stopCh:  make(chan struct{}),
		flushCh: make(chan struct{}, 1),
	}
}

func newNodeID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (se *syncEngine) start() {
	if se.ds.l2 != nil {
		se.wg.Add(1)
		go se.subscribeLoop()
	}
	if se.ds.cfg.WriteMode == WriteBehind && se.ds.l3 != nil {
		se.wg.Add(1)
		go se.writeBehindLoop()
	}
}

func (se *syncEngine) stop() {
	close(se.stopCh)
	se.wg.Wait()
}

func (se *syncEngine) publishInvalidation(ctx context.Context, id, op string) {
	if se.ds.l2 == nil {
		return
	}
	b, err := codec.Default.Marshal(invalidationMsg{Origin: se.node, ID: id, Op: op})
	if err != nil {
		return
	}
	if err := se.ds.l2.Publish(ctx, se.ds.cfg.InvalidationChannel, b); err != nil {
		se.ds.logger.Debug("stattracker: publish invalidation failed", "id", id, "err", err)
	}
}

func (se *syncEngine) subscribeLoop() {
	defer se.wg.Done()
	for {
		select {
		case <-se.stopCh:
			return
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		sub := se.ds.l2.Subscribe(ctx, se.ds.cfg.InvalidationChannel)
		func() {
			defer cancel()
			defer sub.Close()
			msgCh := sub.Channel()
			for {
				select {
				case <-se.stopCh:
					return
				case msg, ok := <-msgCh:
					if !ok {
						return
					}
					se.handleInvalidation(msg.Payload)
				}
			}
		}()
		select {
		case <-se.stopCh:
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (se *syncEngine) handleInvalidation(payload string) {
	var msg invalidationMsg
	if err := codec.Default.Unmarshal([]byte(payload), &msg); err != nil {
		se.ds.logger.Warn("stattracker: malformed invalidation message", "payload", payload, "err", err)
		return
	}
	if msg.Origin == se.node {
		return
	}
	switch msg.Op {
	case opSet, opDelete:
		se.ds.l1.Delete(msg.ID)
	case opInvalidateAll:
		se.ds.l1.Flush()
	}
}

func (se *syncEngine) queueDirty(row l3.Row) {
	se.dirtyMu.Lock()
	se.dirty[row.PlayerID] = &dirtyEntry{row: row}
	count := int64(len(se.dirty))
	se.dirtyMu.Unlock()
	se.setDirtyCount(count)

	if int(count) >= se.ds.cfg.WriteBehindFlushThreshold {
		select {
		case se.flushCh <- struct{}{}:
		default:
		}
	}
}

func (se *syncEngine) dropDirty(id string) {
	se.dirtyMu.Lock()
	delete(se.dirty, id)
	count := int64(len(se.dirty))
	se.dirtyMu.Unlock()
	se.setDirtyCount(count)
}

func (se *syncEngine) setDirtyCount(n int64) {
	se.dirtyCount.Store(n)
	se.ds.metrics.RecordDirtyCount(n)
}

func (se *syncEngine) writeBehindLoop() {
	defer se.wg.Done()
	ticker := time.NewTicker(se.ds.cfg.WriteBehindFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-se.stopCh:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = se.flushDirty(ctx)
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = se.flushDirty(ctx)
			cancel()
		case <-se.flushCh:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = se.flushDirty(ctx)
			cancel()
		}
	}
}

// flushDirty writes the pending rows in one batch. When the batch fails
// each row is retried individually so one bad row cannot hold back the
// rest; rows that keep failing are dropped after WriteBehindMaxRetry
// attempts. A delete waits for a flush in progress, so a flushed row can
// never land after its deletion.
func (se *syncEngine) flushDirty(ctx context.Context) error {
	if se.ds.l3 == nil {
		return nil
	}
	se.flushMu.Lock()
	defer se.flushMu.Unlock()

	se.dirtyMu.Lock()
	if len(se.dirty) == 0 {
		se.dirtyMu.Unlock()
		return nil
	}
	snapshot := se.dirty
	se.dirty = make(map[string]*dirtyEntry, len(snapshot))
	se.dirtyMu.Unlock()
	se.setDirtyCount(0)

	rows := make([]l3.Row, 0, len(snapshot))
	for _, e := range snapshot {
		rows = append(rows, e.row)
	}
	if err := se.ds.l3.UpsertMany(ctx, rows); err == nil {
		return nil
	}

	var failed []*dirtyEntry
	var lastErr error
	for _, entry := range snapshot {
		if err := se.ds.l3.Upsert(ctx, entry.row); err != nil {
			entry.retries++
			entry.lastErr = err
			lastErr = err
			if entry.retries >= se.ds.cfg.WriteBehindMaxRetry {
				lastErr = fmt.Errorf("%w: %s: %v", ErrWriteBehindMaxRetry, entry.row.PlayerID, err)
				se.ds.metrics.RecordError("write_behind")
				se.ds.logger.Error("stattracker: write-behind max retries exceeded",
					"id", entry.row.PlayerID, "retries", entry.retries, "err", err)
				continue
			}
			failed = append(failed, entry)
		}
	}
	if len(failed) > 0 {
		se.dirtyMu.Lock()
		for _, e := range failed {
			// a newer save queued meanwhile wins
			if _, ok := se.dirty[e.row.PlayerID]; !ok {
				se.dirty[e.row.PlayerID] = e
			}
		}
		count := int64(len(se.dirty))
		se.dirtyMu.Unlock()
		se.setDirtyCount(count)
	}
	return lastErr
}

// FlushDirty blocks until all pending write-behind entries have been
// attempted once against L3.
func (ds *Store) FlushDirty(ctx context.Context) error {
	if ds.sync == nil {
		return nil
	}
	return ds.sync.flushDirty(ctx)
}
