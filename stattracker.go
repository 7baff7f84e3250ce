package stattracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/FiskLee/stattracker/internal/clock"
	"github.com/FiskLee/stattracker/internal/codec"
	"github.com/FiskLee/stattracker/internal/dict"
	"github.com/FiskLee/stattracker/internal/l1"
	"github.com/FiskLee/stattracker/internal/l2"
	"github.com/FiskLee/stattracker/internal/l3"
	"github.com/FiskLee/stattracker/internal/l3lite"
	"github.com/FiskLee/stattracker/internal/metrics"
	"github.com/FiskLee/stattracker/internal/subst"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Re-export types so callers only import this package.
type (
	MetricsRecorder = metrics.Recorder
	Serializer      = codec.Codec
	Clock           = clock.Clock
)

// Serializers accepted by Config.Serializer. MsgPackSerializer output is
// binary, so the dictionary substitution step passes it through unchanged.
var (
	JSONSerializer    Serializer = codec.JSON{}
	MsgPackSerializer Serializer = codec.MsgPack{}
)

// ────────────────────────────────────────────────────────────────────────────
// Config
// ────────────────────────────────────────────────────────────────────────────

// WriteMode controls how saves flow through the tiers.
type WriteMode int

const (
	WriteThrough WriteMode = iota // L3 -> L2 -> L1, maximum safety
	WriteBehind                   // L1 and L2 immediately, L3 flushed in batches
)

// L1PoolConfig configures the in-memory L1 cache tier.
type L1PoolConfig struct {
	MaxEntries int
}

// L2PoolConfig configures the Redis L2 cache tier client.
type L2PoolConfig struct {
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// L3PoolConfig configures the PostgreSQL L3 connection pool.
type L3PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Config contains all Store configuration. The zero value is an L1-only
// store; set RedisAddr and PostgresDSN or SQLitePath to add tiers.
type Config struct {
	// Persistence. PostgresDSN takes precedence over SQLitePath.
	PostgresDSN        string
	PostgresReplicaDSN string
	SQLitePath         string
	TableName          string
	AutoMigrate        bool

	// Shared cache
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Pool sizes
	L1Pool L1PoolConfig
	L2Pool L2PoolConfig
	L3Pool L3PoolConfig

	// TTLs
	DefaultL1TTL time.Duration
	DefaultL2TTL time.Duration

	// Write behaviour
	WriteMode                 WriteMode
	WriteBehindFlushInterval  time.Duration
	WriteBehindFlushThreshold int
	WriteBehindMaxRetry       int

	// Invalidation
	InvalidationChannel string

	// Payload format
	DisableCompression bool
	TextualCompression bool
	FormatVersion      int

	// Optional overrideable components
	Serializer codec.Codec
	Clock      clock.Clock
	Metrics    metrics.Recorder
	Logger     Logger

	// Encryption key (must be 32 bytes for AES-256-GCM; nil = disabled).
	EncryptionKey []byte
}

const defaultInvalidationChannel = "stattracker:invalidate"

func (c *Config) defaults() {
	if c.Serializer == nil {
		c.Serializer = codec.Default
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.FormatVersion == 0 {
		c.FormatVersion = FormatVersion
	}
	if c.TableName == "" {
		c.TableName = l3.DefaultTable
	}
	if c.DefaultL1TTL == 0 {
		c.DefaultL1TTL = 5 * time.Minute
	}
	if c.DefaultL2TTL == 0 {
		c.DefaultL2TTL = 30 * time.Minute
	}
	if c.L1Pool.MaxEntries == 0 {
		c.L1Pool.MaxEntries = 100_000
	}
	if c.L3Pool.MaxConns == 0 {
		c.L3Pool.MaxConns = 20
	}
	if c.L3Pool.MinConns == 0 {
		c.L3Pool.MinConns = 2
	}
	if c.L3Pool.MaxConnLifetime == 0 {
		c.L3Pool.MaxConnLifetime = 30 * time.Minute
	}
	if c.L3Pool.MaxConnIdleTime == 0 {
		c.L3Pool.MaxConnIdleTime = 10 * time.Minute
	}
	if c.WriteBehindFlushInterval == 0 {
		c.WriteBehindFlushInterval = 500 * time.Millisecond
	}
	if c.WriteBehindFlushThreshold == 0 {
		c.WriteBehindFlushThreshold = 100
	}
	if c.WriteBehindMaxRetry == 0 {
		c.WriteBehindMaxRetry = 5
	}
	if c.InvalidationChannel == "" {
		c.InvalidationChannel = defaultInvalidationChannel
	}
}

func (c *Config) validate() error {
	if c.FormatVersion < 1 {
		return fmt.Errorf("%w: format version must be positive (got %d)", ErrInvalidConfig, c.FormatVersion)
	}
	if c.WriteMode != WriteThrough && c.WriteMode != WriteBehind {
		return fmt.Errorf("%w: unknown write mode %d", ErrInvalidConfig, c.WriteMode)
	}
	if c.DefaultL1TTL < 0 || c.DefaultL2TTL < 0 {
		return fmt.Errorf("%w: TTLs must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Stats
// ────────────────────────────────────────────────────────────────────────────

type storeStats struct {
	Loads   atomic.Int64
	Saves   atomic.Int64
	Deletes atomic.Int64
	Errors  atomic.Int64
}

// Stats is the snapshot returned by Store.Stats().
type Stats struct {
	Loads      int64
	Saves      int64
	Deletes    int64
	Errors     int64
	DirtyCount int64
	L1Entries  int64
	L1Hits     int64
	L1Misses   int64
	L2Hits     int64
	L2Misses   int64
}

// ────────────────────────────────────────────────────────────────────────────
// Store
// ────────────────────────────────────────────────────────────────────────────

// persister is the durable tier: PostgreSQL (internal/l3) or SQLite
// (internal/l3lite).
type persister interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) ([]string, error)
	Status(ctx context.Context) ([]l3.Applied, error)
	Upsert(ctx context.Context, r l3.Row) error
	UpsertMany(ctx context.Context, rows []l3.Row) error
	Load(ctx context.Context, id string) (l3.Row, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
	Top(ctx context.Context, p l3.Page) ([]l3.Row, error)
	Each(ctx context.Context, fn func(l3.Row) error) error
	Close() error
}

// Store is the main entry-point: it compresses PlayerStats records and
// routes them through the configured tiers.
type Store struct {
	cfg       Config
	objects   *subst.ObjectCodec
	l1        *l1.Store[*PlayerStats]
	l2        *l2.Store
	l3        persister
	sync      *syncEngine
	stats     storeStats
	metrics   metrics.Recorder
	logger    Logger
	encryptor Encryptor
	closed    atomic.Bool
}

// NewStore creates and initialises a Store from the provided Config.
func NewStore(cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ds := &Store{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}

	// Encryption
	if len(cfg.EncryptionKey) > 0 {
		enc, err := NewAES256GCM(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("stattracker: encryption init: %w", err)
		}
		ds.encryptor = enc
	}

	// Payload codec
	ds.objects = subst.NewObjectCodec(subst.New(dict.Default(), subst.Options{
		Disabled:  cfg.DisableCompression,
		Version:   cfg.FormatVersion,
		Textual:   cfg.TextualCompression,
		OnWarning: ds.codecWarning,
	}), cfg.Serializer)

	// L1
	ds.l1 = l1.New(l1.Options[*PlayerStats]{
		MaxEntries: cfg.L1Pool.MaxEntries,
		TTL:        cfg.DefaultL1TTL,
	})

	// L2
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.L2Pool.PoolSize,
			DialTimeout:  cfg.L2Pool.DialTimeout,
			ReadTimeout:  cfg.L2Pool.ReadTimeout,
			WriteTimeout: cfg.L2Pool.WriteTimeout,
		})
		ds.l2 = l2.New(l2.Options{Client: redisClient, KeyPrefix: cfg.RedisKeyPrefix})
	}

	// L3
	switch {
	case cfg.PostgresDSN != "":
		store, err := openPostgres(cfg)
		if err != nil {
			ds.closeTiers()
			return nil, err
		}
		ds.l3 = store
		if cfg.SQLitePath != "" {
			ds.logger.Warn("stattracker: both postgres and sqlite configured, using postgres")
		}
	case cfg.SQLitePath != "":
		store, err := l3lite.Open(cfg.SQLitePath, cfg.TableName)
		if err != nil {
			ds.closeTiers()
			return nil, fmt.Errorf("stattracker: sqlite: %w", err)
		}
		ds.l3 = store
	}

	if cfg.AutoMigrate && ds.l3 != nil {
		applied, err := ds.l3.Migrate(context.Background())
		if err != nil {
			ds.closeTiers()
			return nil, fmt.Errorf("stattracker: auto-migrate: %w", err)
		}
		if len(applied) > 0 {
			ds.logger.Info("stattracker: migrations applied", "names", strings.Join(applied, ","))
		}
	}

	// Sync engine
	ds.sync = newSyncEngine(ds)
	ds.sync.start()

	return ds, nil
}

func openPostgres(cfg Config) (*l3.Store, error) {
	newPool := func(dsn string) (*pgxpool.Pool, error) {
		pgCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("stattracker: postgres config: %w", err)
		}
		pgCfg.MaxConns = cfg.L3Pool.MaxConns
		pgCfg.MinConns = cfg.L3Pool.MinConns
		pgCfg.MaxConnLifetime = cfg.L3Pool.MaxConnLifetime
		pgCfg.MaxConnIdleTime = cfg.L3Pool.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
		if err != nil {
			return nil, fmt.Errorf("stattracker: postgres pool: %w", err)
		}
		return pool, nil
	}

	pool, err := newPool(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	var replica *pgxpool.Pool
	if cfg.PostgresReplicaDSN != "" {
		if replica, err = newPool(cfg.PostgresReplicaDSN); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return l3.New(pool, replica, cfg.TableName), nil
}

func (ds *Store) codecWarning(err error) {
	kind := "other"
	if errors.Is(err, subst.ErrVersionMismatch) {
		kind = "version_mismatch"
	}
	ds.metrics.RecordCodecWarning(kind)
	ds.logger.Warn("stattracker: payload codec warning", "kind", kind, "err", err)
}

func (ds *Store) begin() (time.Time, error) {
	if ds.closed.Load() {
		return time.Time{}, ErrUnavailable
	}
	return ds.cfg.Clock.Now(), nil
}

func (ds *Store) finish(op string, start time.Time, err error) {
	ds.metrics.RecordLatency(op, ds.cfg.Clock.Now().Sub(start))
	if err != nil && !errors.Is(err, ErrNotFound) {
		ds.stats.Errors.Add(1)
		ds.metrics.RecordError(op)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// CRUD
// ────────────────────────────────────────────────────────────────────────────

// Save stamps p.UpdatedAt and writes it through the tiers according to the
// configured WriteMode. The caller keeps ownership of p.
func (ds *Store) Save(ctx context.Context, p *PlayerStats) (err error) {
	start, err := ds.begin()
	if err != nil {
		return err
	}
	defer func() { ds.finish("save", start, err) }()

	if p == nil {
		return ErrNilRecord
	}
	if strings.TrimSpace(p.PlayerID) == "" {
		return ErrInvalidID
	}
	ds.stats.Saves.Add(1)
	p.UpdatedAt = start
	if p.FirstSeen.IsZero() {
		p.FirstSeen = start
	}
	return ds.routerSave(ctx, p.Clone())
}

// SaveMany saves every record, stopping at the first failure.
func (ds *Store) SaveMany(ctx context.Context, records []*PlayerStats) error {
	for _, p := range records {
		if err := ds.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Load fetches the record for id, trying L1, L2 then L3 and back-filling
// the faster tiers. A missing record yields ErrNotFound; an undecodable one
// yields an error wrapping ErrDeserialization.
func (ds *Store) Load(ctx context.Context, id string) (p *PlayerStats, err error) {
	start, err := ds.begin()
	if err != nil {
		return nil, err
	}
	defer func() { ds.finish("load", start, err) }()

	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}
	ds.stats.Loads.Add(1)
	return ds.routerLoad(ctx, id)
}

// LoadMany fetches several records at once. Ids with no stored record are
// absent from the result.
func (ds *Store) LoadMany(ctx context.Context, ids []string) (out map[string]*PlayerStats, err error) {
	start, err := ds.begin()
	if err != nil {
		return nil, err
	}
	defer func() { ds.finish("load_many", start, err) }()

	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, ErrInvalidID
		}
	}
	ds.stats.Loads.Add(int64(len(ids)))
	return ds.routerLoadMany(ctx, ids)
}

// LoadOrDefault returns the stored record for id, or a fresh record named
// name when none exists or the stored payload cannot be decoded. Failures
// other than ErrNotFound are logged.
func (ds *Store) LoadOrDefault(ctx context.Context, id, name string) *PlayerStats {
	p, err := ds.Load(ctx, id)
	if err == nil {
		return p
	}
	if !errors.Is(err, ErrNotFound) {
		ds.logger.Warn("stattracker: load failed, using default record", "id", id, "err", err)
	}
	return NewPlayerStats(id, name)
}

// Delete removes a record from all tiers.
func (ds *Store) Delete(ctx context.Context, id string) (err error) {
	start, err := ds.begin()
	if err != nil {
		return err
	}
	defer func() { ds.finish("delete", start, err) }()

	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	ds.stats.Deletes.Add(1)
	return ds.routerDelete(ctx, id)
}

// Exists returns true if a record exists in any tier.
func (ds *Store) Exists(ctx context.Context, id string) (bool, error) {
	if ds.closed.Load() {
		return false, ErrUnavailable
	}
	if _, ok := ds.l1.Get(id); ok {
		return true, nil
	}
	if ds.l2 != nil {
		ok, err := ds.l2.Exists(ctx, id)
		if err == nil && ok {
			return true, nil
		}
	}
	if ds.l3 != nil {
		return ds.l3.Exists(ctx, id)
	}
	return false, nil
}

// Count returns the number of persisted records. Pending write-behind
// entries are not included until flushed.
func (ds *Store) Count(ctx context.Context) (int64, error) {
	if ds.closed.Load() {
		return 0, ErrUnavailable
	}
	if ds.l3 == nil {
		return 0, ErrL3Unavailable
	}
	return ds.l3.Count(ctx)
}

// Top returns one leaderboard page from the persistence tier. Records whose
// payload cannot be decoded are returned as default records carrying only
// the summary columns.
func (ds *Store) Top(ctx context.Context, q Query) (out []*PlayerStats, err error) {
	start, err := ds.begin()
	if err != nil {
		return nil, err
	}
	defer func() { ds.finish("top", start, err) }()

	if ds.l3 == nil {
		return nil, ErrL3Unavailable
	}
	page, err := q.page()
	if err != nil {
		return nil, err
	}
	rows, err := ds.l3.Top(ctx, page)
	if err != nil {
		return nil, err
	}
	out = make([]*PlayerStats, 0, len(rows))
	for _, r := range rows {
		out = append(out, ds.fromRow(r))
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Cache invalidation
// ────────────────────────────────────────────────────────────────────────────

// Invalidate removes id from L1 and L2 and publishes an invalidation event.
func (ds *Store) Invalidate(ctx context.Context, id string) error {
	if ds.closed.Load() {
		return ErrUnavailable
	}
	ds.l1.Delete(id)
	if ds.l2 != nil {
		_ = ds.l2.Delete(ctx, id)
	}
	ds.sync.publishInvalidation(ctx, id, opDelete)
	return nil
}

// InvalidateAll flushes every cached record across L1 and L2.
func (ds *Store) InvalidateAll(ctx context.Context) error {
	if ds.closed.Load() {
		return ErrUnavailable
	}
	ds.l1.Flush()
	if ds.l2 != nil {
		_ = ds.l2.InvalidateAll(ctx)
	}
	ds.sync.publishInvalidation(ctx, "", opInvalidateAll)
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// WarmCache
// ────────────────────────────────────────────────────────────────────────────

// WarmCache pre-loads the limit most recently updated records from L3 into
// L1 and L2. If limit <= 0, all rows are loaded.
func (ds *Store) WarmCache(ctx context.Context, limit int) (int, error) {
	if ds.closed.Load() {
		return 0, ErrUnavailable
	}
	if ds.l3 == nil {
		return 0, ErrL3Unavailable
	}

	var batch []l2.Entry
	warmed := 0
	warm := func(r l3.Row) error {
		p, err := ds.decode(r.Payload)
		if err != nil {
			ds.logger.Warn("stattracker: warm skipped undecodable record", "id", r.PlayerID, "err", err)
			return nil
		}
		ds.l1.Set(r.PlayerID, p)
		warmed++
		if ds.l2 != nil {
			batch = append(batch, l2.Entry{ID: r.PlayerID, Payload: r.Payload})
			if len(batch) >= warmBatch {
				if err := ds.l2.SetMany(ctx, batch, ds.cfg.DefaultL2TTL); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		return nil
	}

	if limit > 0 {
		rows, err := ds.l3.Top(ctx, l3.Page{OrderBy: string(ByUpdated), Desc: true, Limit: limit})
		if err != nil {
			return 0, err
		}
		for _, r := range rows {
			if err := warm(r); err != nil {
				return warmed, err
			}
		}
	} else if err := ds.l3.Each(ctx, warm); err != nil {
		return warmed, err
	}

	if ds.l2 != nil && len(batch) > 0 {
		if err := ds.l2.SetMany(ctx, batch, ds.cfg.DefaultL2TTL); err != nil {
			return warmed, err
		}
	}
	return warmed, nil
}

const warmBatch = 256

// ────────────────────────────────────────────────────────────────────────────
// Codec access
// ────────────────────────────────────────────────────────────────────────────

// EncodePayload returns the stored form of p without writing it anywhere.
func (ds *Store) EncodePayload(p *PlayerStats) ([]byte, error) {
	if p == nil {
		return nil, ErrNilRecord
	}
	return ds.encode(p)
}

// DecodePayload parses a stored payload produced by EncodePayload or read
// directly from a tier.
func (ds *Store) DecodePayload(payload []byte) (*PlayerStats, error) {
	return ds.decode(payload)
}

// ────────────────────────────────────────────────────────────────────────────
// Stats / Ping / Close
// ────────────────────────────────────────────────────────────────────────────

// Stats returns a snapshot of operational metrics.
func (ds *Store) Stats() Stats {
	s := Stats{
		Loads:   ds.stats.Loads.Load(),
		Saves:   ds.stats.Saves.Load(),
		Deletes: ds.stats.Deletes.Load(),
		Errors:  ds.stats.Errors.Load(),
	}
	if ds.sync != nil {
		s.DirtyCount = ds.sync.dirtyCount.Load()
	}
	st := ds.l1.Stats()
	s.L1Entries, s.L1Hits, s.L1Misses = st.Entries, st.Hits, st.Misses
	if ds.l2 != nil {
		l2s := ds.l2.Stats()
		s.L2Hits, s.L2Misses = l2s.Hits, l2s.Misses
	}
	return s
}

// Ping checks every configured remote tier.
func (ds *Store) Ping(ctx context.Context) error {
	if ds.closed.Load() {
		return ErrUnavailable
	}
	if ds.l2 != nil {
		if err := ds.l2.Ping(ctx); err != nil {
			return fmt.Errorf("stattracker: l2 ping: %w", err)
		}
	}
	if ds.l3 != nil {
		if err := ds.l3.Ping(ctx); err != nil {
			return fmt.Errorf("stattracker: l3 ping: %w", err)
		}
	}
	return nil
}

// Close flushes pending write-behind entries and shuts down the Store.
func (ds *Store) Close() error {
	if !ds.closed.CompareAndSwap(false, true) {
		return nil
	}
	if ds.sync != nil {
		ds.sync.stop()
	}
	return ds.closeTiers()
}

func (ds *Store) closeTiers() error {
	var errs []error
	ds.l1.Flush()
	if ds.l2 != nil {
		errs = append(errs, ds.l2.Close())
	}
	if ds.l3 != nil {
		errs = append(errs, ds.l3.Close())
	}
	return errors.Join(errs...)
}
