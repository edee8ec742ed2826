package config

import (
	"time"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/database/redis"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/minio"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultGlossarySource = GlossarySourceFile
	DefaultGlossaryPath   = "glossary.yaml"

	DefaultAcronymBackend = AcronymBackendMemory

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBName = "doctalk"

	DefaultRedisAddr = "localhost:6379"

	DefaultNERTimeout = 5 * time.Second

	DefaultBatchConcurrency = 4

	DefaultStreamGroupID         = "doctalk"
	DefaultStreamInputTopic      = "doctalk.documents"
	DefaultStreamOutputTopic     = "doctalk.spans"
	DefaultStreamDeadLetterTopic = "doctalk.documents.dlq"
	DefaultStreamOffsetReset     = "earliest"
	DefaultStreamMaxRetries      = 3
	DefaultStreamRetryBackoff    = 500 * time.Millisecond
	DefaultStreamMaxRetryBackoff = 30 * time.Second

	DefaultMetricsNamespace = "doctalk"
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly set fields are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Glossary.Source == "" {
		cfg.Glossary.Source = DefaultGlossarySource
	}
	if cfg.Glossary.Source == GlossarySourceFile && cfg.Glossary.Path == "" {
		cfg.Glossary.Path = DefaultGlossaryPath
	}

	if cfg.Glossary.Source == GlossarySourceObject && cfg.Glossary.Object == "" {
		cfg.Glossary.Object = minio.DefaultGlossaryKey
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = minio.DefaultRegion
	}

	if cfg.Acronym.Backend == "" {
		cfg.Acronym.Backend = DefaultAcronymBackend
	}
	if cfg.Acronym.LockTTL == 0 {
		cfg.Acronym.LockTTL = redis.DefaultLockTTL
	}
	if cfg.Acronym.LockRetryDelay == 0 {
		cfg.Acronym.LockRetryDelay = redis.DefaultLockRetryDelay
	}
	if cfg.Acronym.LockRetryCount == 0 {
		cfg.Acronym.LockRetryCount = redis.DefaultLockRetryCount
	}
	if cfg.Acronym.KeyPrefix == "" {
		cfg.Acronym.KeyPrefix = redis.DefaultKeyPrefix
	}

	// Window 0 means unset; negative values are left for Validate to reject.
	if cfg.Negation.Window == 0 {
		cfg.Negation.Window = negation.DefaultWindow
	}
	if cfg.Negation.PreCues == nil {
		cfg.Negation.PreCues = append([]string(nil), negation.DefaultPreCues...)
	}
	if cfg.Negation.PhraseCues == nil {
		cfg.Negation.PhraseCues = append([]string(nil), negation.DefaultPhraseCues...)
	}

	if cfg.NER.Timeout == 0 {
		cfg.NER.Timeout = DefaultNERTimeout
	}

	if cfg.Detect.BatchConcurrency == 0 {
		cfg.Detect.BatchConcurrency = DefaultBatchConcurrency
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = postgres.DriverPQ
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Redis.Addr == "" && len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addr = DefaultRedisAddr
	}

	if cfg.Stream.GroupID == "" {
		cfg.Stream.GroupID = DefaultStreamGroupID
	}
	if cfg.Stream.InputTopic == "" {
		cfg.Stream.InputTopic = DefaultStreamInputTopic
	}
	if cfg.Stream.OutputTopic == "" {
		cfg.Stream.OutputTopic = DefaultStreamOutputTopic
	}
	if cfg.Stream.DeadLetterTopic == "" {
		cfg.Stream.DeadLetterTopic = DefaultStreamDeadLetterTopic
	}
	if cfg.Stream.AutoOffsetReset == "" {
		cfg.Stream.AutoOffsetReset = DefaultStreamOffsetReset
	}
	// Zero means unset; retries cannot be switched off from configuration.
	if cfg.Stream.MaxRetries == 0 {
		cfg.Stream.MaxRetries = DefaultStreamMaxRetries
	}
	if cfg.Stream.RetryBackoff == 0 {
		cfg.Stream.RetryBackoff = DefaultStreamRetryBackoff
	}
	if cfg.Stream.MaxRetryBackoff == 0 {
		cfg.Stream.MaxRetryBackoff = DefaultStreamMaxRetryBackoff
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
