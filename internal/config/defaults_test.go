package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/doctalk/internal/infrastructure/database/redis"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, GlossarySourceFile, cfg.Glossary.Source)
	assert.Equal(t, DefaultGlossaryPath, cfg.Glossary.Path)
	assert.Equal(t, AcronymBackendMemory, cfg.Acronym.Backend)
	assert.Equal(t, redis.DefaultLockTTL, cfg.Acronym.LockTTL)
	assert.Equal(t, redis.DefaultKeyPrefix, cfg.Acronym.KeyPrefix)
	assert.Equal(t, negation.DefaultWindow, cfg.Negation.Window)
	assert.Equal(t, negation.DefaultPreCues, cfg.Negation.PreCues)
	assert.Equal(t, DefaultNERTimeout, cfg.NER.Timeout)
	assert.Equal(t, DefaultBatchConcurrency, cfg.Detect.BatchConcurrency)
	assert.Equal(t, DefaultDBPort, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, DefaultStreamInputTopic, cfg.Stream.InputTopic)
	assert.Equal(t, DefaultStreamOutputTopic, cfg.Stream.OutputTopic)
	assert.Equal(t, DefaultStreamMaxRetries, cfg.Stream.MaxRetries)
	assert.Equal(t, DefaultStreamRetryBackoff, cfg.Stream.RetryBackoff)
	assert.Empty(t, cfg.Glossary.Object)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Negation.Window = 3
	cfg.Negation.PreCues = []string{}
	cfg.Detect.BatchConcurrency = 16
	cfg.Redis.Addrs = []string{"a:6379", "b:6379"}
	ApplyDefaults(cfg)

	assert.Equal(t, 3, cfg.Negation.Window)
	assert.Empty(t, cfg.Negation.PreCues)
	assert.Equal(t, 16, cfg.Detect.BatchConcurrency)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestApplyDefaults_DoesNotAliasCueLists(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Negation.PreCues[0] = "changed"
	assert.NotEqual(t, "changed", negation.DefaultPreCues[0])
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
