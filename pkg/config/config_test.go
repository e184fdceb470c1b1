package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "fallback", c.Source.Type)
	assert.Equal(t, 100, c.Source.Limit)
	assert.Equal(t, "USD", c.Source.Convert)
	assert.Equal(t, "symbol", c.Normalizer.IdentityField)
	assert.Equal(t, []string{"tags", "platform"}, c.Normalizer.DropFields)
	assert.Equal(t, 60*time.Second, c.Collector.Delay)
	assert.Nil(t, c.Analysis.GroupBy)
	assert.Equal(t, "", c.TableStore())
	assert.True(t, c.Server.CORS)
	assert.Equal(t, "coinpull", c.Cache.Prefix)
	assert.Equal(t, 5*time.Minute, c.Cache.CleanupInterval)
	assert.Equal(t, 1048576, c.Kafka.BatchBytes)
}

func TestLoadKeepsFileValues(t *testing.T) {
	path := writeConfig(t, `
environment: test
source:
  type: synthetic
  limit: 3
collector:
  iterations: 2
  delay: 0s
analysis:
  group_by: ""
metrics:
  enabled: false
server:
  cors: false
sinks:
  enabled: [postgres]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, "synthetic", c.Source.Type)
	assert.Equal(t, 3, c.Source.Limit)
	assert.Equal(t, 2, c.Collector.Iterations)
	assert.Equal(t, time.Duration(0), c.Collector.Delay)
	require.NotNil(t, c.Analysis.GroupBy)
	assert.Equal(t, "", *c.Analysis.GroupBy)
	assert.Equal(t, "postgres", c.TableStore())
	assert.False(t, c.Metrics.Enabled)
	assert.False(t, c.Server.CORS)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown source":  "source:\n  type: ftp\n",
		"cmc without key": "source:\n  type: coinmarketcap\n",
		"unknown sink":    "sinks:\n  enabled: [s3]\n",
		"bad log level":   "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SOURCE_TYPE", "coinmarketcap")
	t.Setenv("CMC_API_KEY", "secret")
	t.Setenv("SOURCE_LIMIT", "7")
	t.Setenv("SINKS", "kafka,clickhouse")

	c, err := LoadWithEnv("")
	require.NoError(t, err)

	assert.Equal(t, "coinmarketcap", c.Source.Type)
	assert.Equal(t, "secret", c.Source.APIKey)
	assert.Equal(t, 7, c.Source.Limit)
	assert.True(t, c.Sinks.Has("kafka"))
	assert.Equal(t, "clickhouse", c.TableStore())
}

func TestLoadWithEnvRejectsBadNumber(t *testing.T) {
	t.Setenv("SOURCE_LIMIT", "many")
	_, err := LoadWithEnv("")
	assert.Error(t, err)
}
