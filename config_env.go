package stattracker

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors the environment-settable subset of Config.
type envConfig struct {
	PostgresDSN        string        `env:"STATTRACKER_POSTGRES_DSN"`
	PostgresReplicaDSN string        `env:"STATTRACKER_POSTGRES_REPLICA_DSN"`
	SQLitePath         string        `env:"STATTRACKER_SQLITE_PATH"`
	TableName          string        `env:"STATTRACKER_TABLE"`
	AutoMigrate        bool          `env:"STATTRACKER_AUTO_MIGRATE" envDefault:"false"`
	RedisAddr          string        `env:"STATTRACKER_REDIS_ADDR"`
	RedisPassword      string        `env:"STATTRACKER_REDIS_PASSWORD"`
	RedisDB            int           `env:"STATTRACKER_REDIS_DB" envDefault:"0"`
	RedisKeyPrefix     string        `env:"STATTRACKER_REDIS_KEY_PREFIX"`
	L1MaxEntries       int           `env:"STATTRACKER_L1_MAX_ENTRIES"`
	L1TTL              time.Duration `env:"STATTRACKER_L1_TTL"`
	L2TTL              time.Duration `env:"STATTRACKER_L2_TTL"`
	WriteBehind        bool          `env:"STATTRACKER_WRITE_BEHIND"`
	FlushInterval      time.Duration `env:"STATTRACKER_FLUSH_INTERVAL"`
	FlushThreshold     int           `env:"STATTRACKER_FLUSH_THRESHOLD"`
	MaxRetry           int           `env:"STATTRACKER_MAX_RETRY"`
	Channel            string        `env:"STATTRACKER_INVALIDATION_CHANNEL"`
	DisableCompression bool          `env:"STATTRACKER_DISABLE_COMPRESSION"`
	TextualCompression bool          `env:"STATTRACKER_TEXTUAL_COMPRESSION"`
	FormatVersion      int           `env:"STATTRACKER_FORMAT_VERSION"`
	EncryptionKeyHex   string        `env:"STATTRACKER_ENCRYPTION_KEY"`
}

// ConfigFromEnv loads a Config from STATTRACKER_* environment variables.
// Unset variables keep their zero value so NewStore applies its defaults.
// The encryption key is hex encoded.
func ConfigFromEnv() (Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	cfg := Config{
		PostgresDSN:               ec.PostgresDSN,
		PostgresReplicaDSN:        ec.PostgresReplicaDSN,
		SQLitePath:                ec.SQLitePath,
		TableName:                 ec.TableName,
		AutoMigrate:               ec.AutoMigrate,
		RedisAddr:                 ec.RedisAddr,
		RedisPassword:             ec.RedisPassword,
		RedisDB:                   ec.RedisDB,
		RedisKeyPrefix:            ec.RedisKeyPrefix,
		L1Pool:                    L1PoolConfig{MaxEntries: ec.L1MaxEntries},
		DefaultL1TTL:              ec.L1TTL,
		DefaultL2TTL:              ec.L2TTL,
		WriteBehindFlushInterval:  ec.FlushInterval,
		WriteBehindFlushThreshold: ec.FlushThreshold,
		WriteBehindMaxRetry:       ec.MaxRetry,
		InvalidationChannel:       ec.Channel,
		DisableCompression:        ec.DisableCompression,
		TextualCompression:        ec.TextualCompression,
		FormatVersion:             ec.FormatVersion,
	}
	if ec.WriteBehind {
		cfg.WriteMode = WriteBehind
	}
	if ec.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(ec.EncryptionKeyHex)
		if err != nil {
			return Config{}, fmt.Errorf("%w: encryption key: %v", ErrInvalidConfig, err)
		}
		cfg.EncryptionKey = key
	}
	return cfg, nil
}
