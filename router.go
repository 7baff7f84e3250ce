package stattracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/FiskLee/stattracker/internal/l2"
	"github.com/FiskLee/stattracker/internal/l3"
)

// ────────────────────────────────────────────────────────────────────────────
// Payload path
// ────────────────────────────────────────────────────────────────────────────

// encode serializes, compresses and optionally seals p.
func (ds *Store) encode(p *PlayerStats) ([]byte, error) {
	payload, rawLen, err := ds.objects.Encode(p)
	if err != nil {
		return nil, err
	}
	ds.metrics.RecordPayload(rawLen, len(payload))
	if ds.encryptor == nil {
		return payload, nil
	}
	sealed, err := ds.encryptor.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	return sealed, nil
}

// decode reverses encode.
func (ds *Store) decode(payload []byte) (*PlayerStats, error) {
	if ds.encryptor != nil {
		opened, err := ds.encryptor.Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		payload = opened
	}
	p := &PlayerStats{}
	if err := ds.objects.DecompressToObject(payload, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (ds *Store) toRow(p *PlayerStats, payload []byte) l3.Row {
	return l3.Row{
		PlayerID:        p.PlayerID,
		FormatVersion:   ds.cfg.FormatVersion,
		Payload:         payload,
		Kills:           p.Kills,
		Deaths:          p.Deaths,
		PlaytimeSeconds: p.PlaytimeSeconds,
		UpdatedAt:       p.UpdatedAt,
	}
}

// fromRow decodes r, falling back to a default record carrying the summary
// columns when the payload is unreadable.
func (ds *Store) fromRow(r l3.Row) *PlayerStats {
	p, err := ds.decode(r.Payload)
	if err == nil {
		return p
	}
	ds.logger.Warn("stattracker: undecodable row, using summary columns", "id", r.PlayerID, "err", err)
	p = NewPlayerStats(r.PlayerID, "")
	p.Kills, p.Deaths, p.PlaytimeSeconds, p.UpdatedAt = r.Kills, r.Deaths, r.PlaytimeSeconds, r.UpdatedAt
	return p
}

// ────────────────────────────────────────────────────────────────────────────
// Read path
// ────────────────────────────────────────────────────────────────────────────

// routerLoad attempts L1 → L2 → L3 and back-fills upper tiers on a miss.
func (ds *Store) routerLoad(ctx context.Context, id string) (*PlayerStats, error) {
	// L1 hit
	if p, ok := ds.l1.Get(id); ok {
		ds.metrics.RecordHit("l1")
		return p.Clone(), nil
	}
	ds.metrics.RecordMiss("l1")

	// L2 hit
	if ds.l2 != nil {
		payload, err := ds.l2.Get(ctx, id)
		switch {
		case err == nil:
			p, derr := ds.decode(payload)
			if derr == nil {
				ds.metrics.RecordHit("l2")
				ds.l1.Set(id, p.Clone())
				return p, nil
			}
			ds.logger.Warn("stattracker: dropping undecodable l2 payload", "id", id, "err", derr)
			_ = ds.l2.Delete(ctx, id)
			if ds.l3 == nil {
				return nil, derr
			}
		case errors.Is(err, l2.ErrMiss):
		default:
			ds.logger.Debug("stattracker: l2 read failed", "id", id, "err", err)
		}
	}
	ds.metrics.RecordMiss("l2")

	return ds.loadL3(ctx, id)
}

// loadL3 reads id from L3 and back-fills L2 then L1.
func (ds *Store) loadL3(ctx context.Context, id string) (*PlayerStats, error) {
	if ds.l3 == nil {
		return nil, ErrNotFound
	}
	row, err := ds.l3.Load(ctx, id)
	if err != nil {
		if errors.Is(err, l3.ErrNoRow) {
			ds.metrics.RecordMiss("l3")
			return nil, ErrNotFound
		}
		return nil, err
	}
	p, err := ds.decode(row.Payload)
	if err != nil {
		return nil, err
	}
	ds.metrics.RecordHit("l3")
	if ds.l2 != nil {
		_ = ds.l2.Set(ctx, id, row.Payload, ds.cfg.DefaultL2TTL)
	}
	ds.l1.Set(id, p.Clone())
	return p, nil
}

// routerLoadMany serves ids from L1, then one L2 pipeline, then L3 row by
// row. Missing ids are absent from the result.
func (ds *Store) routerLoadMany(ctx context.Context, ids []string) (map[string]*PlayerStats, error) {
	out := make(map[string]*PlayerStats, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var pending []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := ds.l1.Get(id); ok {
			ds.metrics.RecordHit("l1")
			out[id] = p.Clone()
			continue
		}
		ds.metrics.RecordMiss("l1")
		pending = append(pending, id)
	}

	if ds.l2 != nil && len(pending) > 0 {
		payloads, err := ds.l2.GetMany(ctx, pending)
		if err != nil {
			ds.logger.Debug("stattracker: l2 batch read failed", "count", len(pending), "err", err)
		}
		rest := pending[:0]
		for _, id := range pending {
			if payload, ok := payloads[id]; ok {
				if p, derr := ds.decode(payload); derr == nil {
					ds.metrics.RecordHit("l2")
					ds.l1.Set(id, p.Clone())
					out[id] = p
					continue
				}
				_ = ds.l2.Delete(ctx, id)
			}
			ds.metrics.RecordMiss("l2")
			rest = append(rest, id)
		}
		pending = rest
	}

	if ds.l3 == nil {
		return out, nil
	}
	for _, id := range pending {
		p, err := ds.loadL3(ctx, id)
		switch {
		case err == nil:
			out[id] = p
		case errors.Is(err, ErrNotFound):
		default:
			return out, err
		}
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Write path
// ────────────────────────────────────────────────────────────────────────────

// routerSave takes ownership of p.
func (ds *Store) routerSave(ctx context.Context, p *PlayerStats) error {
	payload, err := ds.encode(p)
	if err != nil {
		return err
	}
	if ds.cfg.WriteMode == WriteBehind && ds.l3 != nil {
		return ds.routerSaveWriteBehind(ctx, p, payload)
	}
	return ds.routerSaveWriteThrough(ctx, p, payload)
}

func (ds *Store) routerSaveWriteThrough(ctx context.Context, p *PlayerStats, payload []byte) error {
	// L3 first
	if ds.l3 != nil {
		if err := ds.l3.Upsert(ctx, ds.toRow(p, payload)); err != nil {
			return err
		}
	}
	// L2
	if ds.l2 != nil {
		if err := ds.l2.Set(ctx, p.PlayerID, payload, ds.cfg.DefaultL2TTL); err != nil {
			ds.logger.Debug("stattracker: l2 write failed", "id", p.PlayerID, "err", err)
		}
	}
	// L1
	ds.l1.Set(p.PlayerID, p)
	// Invalidate other nodes
	ds.sync.publishInvalidation(ctx, p.PlayerID, opSet)
	return nil
}

func (ds *Store) routerSaveWriteBehind(ctx context.Context, p *PlayerStats, payload []byte) error {
	ds.l1.Set(p.PlayerID, p)
	if ds.l2 != nil {
		if err := ds.l2.Set(ctx, p.PlayerID, payload, ds.cfg.DefaultL2TTL); err != nil {
			ds.logger.Debug("stattracker: l2 write failed", "id", p.PlayerID, "err", err)
		}
	}
	ds.sync.queueDirty(ds.toRow(p, payload))
	ds.sync.publishInvalidation(ctx, p.PlayerID, opSet)
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Delete path
// ────────────────────────────────────────────────────────────────────────────

func (ds *Store) routerDelete(ctx context.Context, id string) error {
	ds.sync.flushMu.Lock()
	ds.l1.Delete(id)
	ds.sync.dropDirty(id)
	if ds.l2 != nil {
		_ = ds.l2.Delete(ctx, id)
	}
	if ds.l3 != nil {
		if err := ds.l3.Delete(ctx, id); err != nil {
			ds.sync.flushMu.Unlock()
			return err
		}
	}
	ds.sync.flushMu.Unlock()
	ds.sync.publishInvalidation(ctx, id, opDelete)
	return nil
}
