// Package config defines the configuration structures for the doctalk span
// detector.  No I/O lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/database/redis"
	"github.com/turtacn/doctalk/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/minio"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
)

// Glossary sources.
const (
	GlossarySourceFile     = "file"
	GlossarySourcePostgres = "postgres"
	GlossarySourceObject   = "object"
)

// Acronym memory backends.
const (
	AcronymBackendMemory   = "memory"
	AcronymBackendRedis    = "redis"
	AcronymBackendPostgres = "postgres"
	AcronymBackendSQLite   = "sqlite"
)

// GlossaryConfig selects where the glossary is loaded from.
type GlossaryConfig struct {
	Source string `mapstructure:"source"` // "file" | "postgres" | "object"
	Path   string `mapstructure:"path"`
	Object string `mapstructure:"object"`
	Watch  bool   `mapstructure:"watch"`
}

// AcronymConfig selects the acronym memory backend and its lock tunables.
type AcronymConfig struct {
	Backend        string        `mapstructure:"backend"` // "memory" | "redis" | "postgres" | "sqlite"
	SQLitePath     string        `mapstructure:"sqlite_path"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`
	LockRetryCount int           `mapstructure:"lock_retry_count"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
}

// NegationConfig holds the cue lists for the negation scorer.
type NegationConfig struct {
	Window     int      `mapstructure:"window"`
	PreCues    []string `mapstructure:"pre_cues"`
	PhraseCues []string `mapstructure:"phrase_cues"`
}

// ScorerConfig converts the section to the scorer's own type.
func (n NegationConfig) ScorerConfig() negation.Config {
	return negation.Config{
		Window:     n.Window,
		PreCues:    n.PreCues,
		PhraseCues: n.PhraseCues,
	}
}

// NERConfig holds the external recognizer parameters.
type NERConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	Endpoint   string            `mapstructure:"endpoint"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
	RetryWait  time.Duration     `mapstructure:"retry_wait"`
	Labels     map[string]string `mapstructure:"labels"`
}

// DetectConfig holds span collector tunables.
type DetectConfig struct {
	BatchConcurrency int  `mapstructure:"batch_concurrency"`
	NormalizeUnicode bool `mapstructure:"normalize_unicode"`
}

// StreamConfig holds the Kafka document stream parameters used by the
// consume command.
type StreamConfig struct {
	Brokers         []string             `mapstructure:"brokers"`
	GroupID         string               `mapstructure:"group_id"`
	InputTopic      string               `mapstructure:"input_topic"`
	OutputTopic     string               `mapstructure:"output_topic"`
	DeadLetterTopic string               `mapstructure:"dead_letter_topic"`
	AutoOffsetReset string               `mapstructure:"auto_offset_reset"`
	MaxRetries      int                  `mapstructure:"max_retries"`
	RetryBackoff    time.Duration        `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration        `mapstructure:"max_retry_backoff"`
	Acks            string               `mapstructure:"acks"`
	Compression     string               `mapstructure:"compression"`
	Security        kafka.SecurityConfig `mapstructure:"security"`
}

// ConsumerConfig converts the section for the document consumer.
func (s StreamConfig) ConsumerConfig() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:         s.Brokers,
		GroupID:         s.GroupID,
		Topic:           s.InputTopic,
		AutoOffsetReset: s.AutoOffsetReset,
		Security:        s.Security,
		Retry: kafka.RetryConfig{
			MaxRetries:      s.MaxRetries,
			Backoff:         s.RetryBackoff,
			MaxBackoff:      s.MaxRetryBackoff,
			DeadLetterTopic: s.DeadLetterTopic,
		},
	}
}

// ProducerConfig converts the section for the result producer.
func (s StreamConfig) ProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:     s.Brokers,
		Acks:        s.Acks,
		Compression: s.Compression,
		Security:    s.Security,
	}
}

// ValidateStream checks the fields only the consume command needs.
func (c *Config) ValidateStream() error {
	if len(c.Stream.Brokers) == 0 {
		return fmt.Errorf("config: stream.brokers is required")
	}
	if c.Stream.GroupID == "" {
		return fmt.Errorf("config: stream.group_id is required")
	}
	return nil
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Textfile  string `mapstructure:"textfile"`
	// Listen is the address consume serves /metrics on.
	Listen string `mapstructure:"listen"`
}

// Config is the root configuration structure.
type Config struct {
	Log         logging.LogConfig       `mapstructure:"log"`
	Glossary    GlossaryConfig          `mapstructure:"glossary"`
	Acronym     AcronymConfig           `mapstructure:"acronym"`
	Negation    NegationConfig          `mapstructure:"negation"`
	NER         NERConfig               `mapstructure:"ner"`
	Detect      DetectConfig            `mapstructure:"detect"`
	Database    postgres.PostgresConfig `mapstructure:"database"`
	Redis       redis.RedisConfig       `mapstructure:"redis"`
	ObjectStore minio.MinIOConfig       `mapstructure:"object_store"`
	Stream      StreamConfig            `mapstructure:"stream"`
	Metrics     MetricsConfig           `mapstructure:"metrics"`
}

// UsesPostgres reports whether any component needs the database.
func (c *Config) UsesPostgres() bool {
	return c.Glossary.Source == GlossarySourcePostgres || c.Acronym.Backend == AcronymBackendPostgres
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch c.Glossary.Source {
	case GlossarySourceFile:
		if c.Glossary.Path == "" {
			return fmt.Errorf("config: glossary.path is required for the file source")
		}
	case GlossarySourcePostgres:
	case GlossarySourceObject:
		if c.ObjectStore.Endpoint == "" {
			return fmt.Errorf("config: object_store.endpoint is required for the object source")
		}
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("config: object_store.bucket is required for the object source")
		}
	default:
		return fmt.Errorf("config: glossary.source %q is invalid; expected file|postgres|object", c.Glossary.Source)
	}
	if c.Glossary.Watch && c.Glossary.Source != GlossarySourceFile {
		return fmt.Errorf("config: glossary.watch is only supported for the file source")
	}

	switch c.Acronym.Backend {
	case AcronymBackendMemory, AcronymBackendPostgres:
	case AcronymBackendRedis:
		if c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("config: redis.addr is required for the redis acronym backend")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	case AcronymBackendSQLite:
		if c.Acronym.SQLitePath == "" {
			return fmt.Errorf("config: acronym.sqlite_path is required for the sqlite acronym backend")
		}
	default:
		return fmt.Errorf("config: acronym.backend %q is invalid; expected memory|redis|postgres|sqlite", c.Acronym.Backend)
	}
	if c.Acronym.LockRetryCount < 0 {
		return fmt.Errorf("config: acronym.lock_retry_count must be >= 0, got %d", c.Acronym.LockRetryCount)
	}

	if c.UsesPostgres() {
		switch c.Database.Driver {
		case postgres.DriverPQ, postgres.DriverPGX:
		default:
			return fmt.Errorf("config: database.driver must be %q or %q, got %q", postgres.DriverPQ, postgres.DriverPGX, c.Database.Driver)
		}
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("config: database.name is required")
		}
	}

	if c.Negation.Window < 1 {
		return fmt.Errorf("config: negation.window must be >= 1, got %d", c.Negation.Window)
	}

	if c.NER.Enabled && c.NER.Endpoint == "" {
		return fmt.Errorf("config: ner.endpoint is required when ner is enabled")
	}
	if c.NER.Timeout < 0 {
		return fmt.Errorf("config: ner.timeout must not be negative")
	}

	if c.Detect.BatchConcurrency < 1 {
		return fmt.Errorf("config: detect.batch_concurrency must be >= 1, got %d", c.Detect.BatchConcurrency)
	}

	switch c.Stream.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("config: stream.auto_offset_reset %q is invalid; expected earliest|latest", c.Stream.AutoOffsetReset)
	}
	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("config: stream.max_retries must be >= 0, got %d", c.Stream.MaxRetries)
	}
	if c.Stream.InputTopic == c.Stream.OutputTopic {
		return fmt.Errorf("config: stream.output_topic must differ from stream.input_topic")
	}
	if c.Stream.DeadLetterTopic != "" && c.Stream.DeadLetterTopic == c.Stream.InputTopic {
		return fmt.Errorf("config: stream.dead_letter_topic must differ from stream.input_topic")
	}

	if c.Metrics.Textfile != "" && !c.Metrics.Enabled {
		return fmt.Errorf("config: metrics.textfile requires metrics.enabled")
	}
	if c.Metrics.Listen != "" && !c.Metrics.Enabled {
		return fmt.Errorf("config: metrics.listen requires metrics.enabled")
	}
	return nil
}
