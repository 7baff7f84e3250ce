package stattracker

import (
	"context"
	"time"
)

// MigrationRecord describes a single applied migration.
type MigrationRecord struct {
	Name      string
	AppliedAt time.Time
}

// Migrate applies all pending schema changes to the persistence tier
// (idempotent) and returns the names applied by this call. Without a
// persistence tier it is a no-op.
func (ds *Store) Migrate(ctx context.Context) ([]string, error) {
	if ds.closed.Load() {
		return nil, ErrUnavailable
	}
	if ds.l3 == nil {
		return nil, nil
	}
	applied, err := ds.l3.Migrate(ctx)
	for _, name := range applied {
		ds.logger.Info("stattracker: migration applied", "name", name)
	}
	return applied, err
}

// MigrationStatus returns the applied migrations in order.
func (ds *Store) MigrationStatus(ctx context.Context) ([]MigrationRecord, error) {
	if ds.closed.Load() {
		return nil, ErrUnavailable
	}
	if ds.l3 == nil {
		return nil, ErrL3Unavailable
	}
	applied, err := ds.l3.Status(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]MigrationRecord, len(applied))
	for i, a := range applied {
		records[i] = MigrationRecord{Name: a.Name, AppliedAt: a.AppliedAt}
	}
	return records, nil
}
