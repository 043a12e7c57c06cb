package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "POLICY_CACHE_TTL", "POLICY_FILE",
		"POLICY_WATCH", "KAFKA_BROKERS", "KAFKA_DECISION_TOPIC", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.PolicyCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "loan-policy-decisions", cfg.KafkaDecisionTopic)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.False(t, cfg.PolicyWatch)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/loans")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("POLICY_CACHE_TTL", "90")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("POLICY_FILE", "/etc/loanpolicy/policies.yaml")
	t.Setenv("POLICY_WATCH", "TRUE")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("KAFKA_DECISION_TOPIC", "decisions")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/loans", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.PolicyCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.PolicyWatch)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "decisions", cfg.KafkaDecisionTopic)
}

func TestFromEnvErrors(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("POLICY_CACHE_TTL", "soon")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "invalid duration")
	})

	t.Run("watch without file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("POLICY_WATCH", "true")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "POLICY_FILE")
	})
}

func TestFromEnvBlankValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "   ")
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", " , ")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
}
