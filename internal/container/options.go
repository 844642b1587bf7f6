package container

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Options configures the server, the consumer and the sweep command. Every option can
// also be set through a SERVICE_* environment variable.
type Options struct {
	Port          int    `default:"8888"             help:"Port to listen on"                                        short:"p"`
	BaseURL       string `default:""                 help:"Public base URL of short links, defaults to localhost"`
	CodeLength    int    `default:"6"                help:"Length of generated short codes"                          short:"c"`
	Storage       string `default:"memory"           help:"Storage backend: memory, sqlite or postgres"              short:"s"`
	DatabaseURL   string `default:"file:shortlink.db" help:"SQLite path, libsql URL or Postgres connection string"`
	RedisAddr     string `default:""                 help:"Redis address; empty disables cache, shared limits and streams" short:"r"`
	CacheTTL      string `default:"1h"               help:"Upper bound on how long a link stays cached"`
	ClickMode     string `default:"direct"           help:"Click recording: direct or stream"`
	LogFormat     string `default:"console"          help:"Log format: console or json"`
	SweepInterval string `default:"1m"               help:"Minimum time between opportunistic sweeps"`
	ConsumerGroup string `default:"shortlink-clicks" help:"Redis Streams consumer group of the consumer process"`
}

// PublicBaseURL returns the prefix of short URLs.
func (o *Options) PublicBaseURL() string {
	if o.BaseURL != "" {
		return strings.TrimRight(o.BaseURL, "/")
	}

	return fmt.Sprintf("http://localhost:%d", o.Port)
}

// RedisEnabled reports whether a Redis address is configured.
func (o *Options) RedisEnabled() bool {
	return strings.TrimSpace(o.RedisAddr) != ""
}

// ValidateConsumer checks that a standalone consumer process can do useful work: it reads
// Redis Streams and must write clicks to storage the server shares.
func (o *Options) ValidateConsumer() error {
	if !o.RedisEnabled() {
		return errors.New("the consumer reads Redis Streams, set --redis-addr or SERVICE_REDIS_ADDR")
	}

	if o.Storage == StorageMemory || o.Storage == "" {
		return errors.New("the consumer needs shared storage, set --storage to sqlite or postgres")
	}

	return nil
}

// Durations parses the duration options.
func (o *Options) Durations() (cacheTTL, sweepInterval time.Duration, err error) {
	cacheTTL, err = time.ParseDuration(o.CacheTTL)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cache ttl %q: %w", o.CacheTTL, err)
	}

	sweepInterval, err = time.ParseDuration(o.SweepInterval)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sweep interval %q: %w", o.SweepInterval, err)
	}

	return cacheTTL, sweepInterval, nil
}
