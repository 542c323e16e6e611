package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, "sheetflow", cfg.BrokerExchange)
	require.Equal(t, "schemas.update", cfg.RoutingKeySchemaUpdate)
	require.Equal(t, 3, cfg.RedisRetry.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.RedisRetry.RetryDelay)
	require.Equal(t, 60*time.Second, cfg.BrokerRetry.StabilityThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_RETRY_MAX_RETRIES", "7")
	t.Setenv("DOC_RETRY_DELAY", "500ms")
	t.Setenv("TASK_TTL_TABLE", "accepted:10,completed:99")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.BrokerRetry.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.DocRetry.RetryDelay)
	require.Equal(t, 10*time.Second, cfg.TTLFor("accepted"))
	require.Equal(t, 99*time.Second, cfg.TTLFor("completed"))
}

func TestTTLFor_DefaultOnUnknownStatus(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, cfg.TaskTTLDefault, cfg.TTLFor("no-such-status"))
}

func TestTTLFor_TerminalLongerThanProcessing(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	processing := []string{"accepted", "processing-file", "validating-file", "creating-schema", "saving-schema"}
	terminal := []string{"completed", "published", "error", "failed-creating-schema"}
	for _, p := range processing {
		for _, tm := range terminal {
			require.Greater(t, cfg.TTLFor(tm), cfg.TTLFor(p), "ttl(%s) must exceed ttl(%s)", tm, p)
		}
	}
}

func TestMergeRetry_TakesMax(t *testing.T) {
	a := RetryConfig{MaxRetries: 2, RetryDelay: time.Second, Backoff: 2.0, StabilityThreshold: 30 * time.Second}
	b := RetryConfig{MaxRetries: 5, RetryDelay: 500 * time.Millisecond, Backoff: 1.5, StabilityThreshold: 60 * time.Second}
	m := MergeRetry(a, b)
	require.Equal(t, 5, m.MaxRetries)
	require.Equal(t, time.Second, m.RetryDelay)
	require.Equal(t, 2.0, m.Backoff)
	require.Equal(t, 60*time.Second, m.StabilityThreshold)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProd())
	require.False(t, cfg.IsDev())
	require.False(t, cfg.IsTest())
}
