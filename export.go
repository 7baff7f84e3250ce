// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// export.go - msgpack archive of persisted rows. Payloads are copied as
// stored, so an archive keeps its format version and sealing.

package stattracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/FiskLee/stattracker/internal/l3"
	"github.com/vmihailenco/msgpack/v5"
)

const archiveFormat = "stattracker-archive"

// archiveHeader opens every export stream.
type archiveHeader struct {
	Format        string    `msgpack:"format"`
	FormatVersion int       `msgpack:"formatVersion"`
	Sealed        bool      `msgpack:"sealed"`
	CreatedAt     time.Time `msgpack:"createdAt"`
}

// archiveRecord is one persisted row.
type archiveRecord struct {
	ID              string    `msgpack:"id"`
	Version         int       `msgpack:"version"`
	Payload         []byte    `msgpack:"payload"`
	Kills           int64     `msgpack:"kills"`
	Deaths          int64     `msgpack:"deaths"`
	PlaytimeSeconds int64     `msgpack:"playtimeSeconds"`
	UpdatedAt       time.Time `msgpack:"updatedAt"`
}

const importBatch = 500

// Export flushes pending writes and streams every persisted row to w. It
// returns the number of records written.
func (ds *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	if ds.closed.Load() {
		return 0, ErrUnavailable
	}
	if ds.l3 == nil {
		return 0, ErrL3Unavailable
	}
	if err := ds.FlushDirty(ctx); err != nil {
		return 0, fmt.Errorf("stattracker: export flush: %w", err)
	}

	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(archiveHeader{
		Format:        archiveFormat,
		FormatVersion: ds.cfg.FormatVersion,
		Sealed:        ds.encryptor != nil,
		CreatedAt:     ds.cfg.Clock.Now(),
	}); err != nil {
		return 0, fmt.Errorf("stattracker: export header: %w", err)
	}
	n := 0
	err := ds.l3.Each(ctx, func(r l3.Row) error {
		if err := enc.Encode(archiveRecord{
			ID:              r.PlayerID,
			Version:         r.FormatVersion,
			Payload:         r.Payload,
			Kills:           r.Kills,
			Deaths:          r.Deaths,
			PlaytimeSeconds: r.PlaytimeSeconds,
			UpdatedAt:       r.UpdatedAt,
		}); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("stattracker: export: %w", err)
	}
	ds.logger.Info("stattracker: export complete", "records", n)
	return n, nil
}

// Import reads an archive produced by Export and upserts every record,
// evicting imported ids from the caches. The archive's sealing must match
// this store's.
func (ds *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	if ds.closed.Load() {
		return 0, ErrUnavailable
	}
	if ds.l3 == nil {
		return 0, ErrL3Unavailable
	}

	dec := msgpack.NewDecoder(r)
	var hdr archiveHeader
	if err := dec.Decode(&hdr); err != nil {
		return 0, fmt.Errorf("%w: archive header: %v", ErrDeserialization, err)
	}
	if hdr.Format != archiveFormat {
		return 0, fmt.Errorf("%w: not an archive (format %q)", ErrDeserialization, hdr.Format)
	}
	if hdr.Sealed != (ds.encryptor != nil) {
		return 0, fmt.Errorf("%w: archive sealed=%t, store sealed=%t", ErrInvalidConfig, hdr.Sealed, ds.encryptor != nil)
	}

	n := 0
	batch := make([]l3.Row, 0, importBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ds.sync.flushMu.Lock()
		defer ds.sync.flushMu.Unlock()
		if err := ds.l3.UpsertMany(ctx, batch); err != nil {
			return err
		}
		for _, row := range batch {
			ds.l1.Delete(row.PlayerID)
			ds.sync.dropDirty(row.PlayerID)
			if ds.l2 != nil {
				_ = ds.l2.Delete(ctx, row.PlayerID)
			}
		}
		n += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		var rec archiveRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("%w: archive record %d: %v", ErrDeserialization, n+len(batch), err)
		}
		if rec.ID == "" {
			return n, fmt.Errorf("%w: archive record %d", ErrInvalidID, n+len(batch))
		}
		if rec.Version != ds.cfg.FormatVersion {
			ds.codecWarning(fmt.Errorf("%w: record %s has version %d", ErrVersionMismatch, rec.ID, rec.Version))
		}
		batch = append(batch, l3.Row{
			PlayerID:        rec.ID,
			FormatVersion:   rec.Version,
			Payload:         rec.Payload,
			Kills:           rec.Kills,
			Deaths:          rec.Deaths,
			PlaytimeSeconds: rec.PlaytimeSeconds,
			UpdatedAt:       rec.UpdatedAt,
		})
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return n, fmt.Errorf("stattracker: import: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return n, fmt.Errorf("stattracker: import: %w", err)
	}
	if n > 0 {
		ds.sync.publishInvalidation(ctx, "", opInvalidateAll)
	}
	ds.logger.Info("stattracker: import complete", "records", n)
	return n, nil
}
