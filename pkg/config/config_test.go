package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
environment: test
source:
  type: file
  matrix_path: testdata/matrix.csv
  industries_path: testdata/industries.yaml
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 8050, c.Server.Port)
	assert.Equal(t, "memory", c.Cache.Type)
	assert.Equal(t, "covariance", c.Source.MatrixTable)
	assert.Equal(t, "industry_tickers", c.Source.IndustryTable)
	assert.Equal(t, "Viridis", c.Dashboard.DefaultScale)
	assert.Equal(t, 2, c.Dashboard.AnnotationDecimals)
	assert.Equal(t, 2, c.Dashboard.Columns)
	assert.Equal(t, "covdash_session", c.Dashboard.SessionCookie)
	assert.Equal(t, "covdash.exports", c.Kafka.Topic)
	assert.Equal(t, "covdash", c.Kafka.GroupID)
	assert.Empty(t, c.Kafka.SnapshotTopic)
	assert.Equal(t, 10*time.Minute, c.Cache.ArtifactTTL)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing environment": "source: {type: file, matrix_path: a, industries_path: b}",
		"bad source":          "environment: x\nsource: {type: s3}",
		"file paths":          "environment: x\nsource: {type: file}",
		"clickhouse host":     "environment: x\nsource: {type: clickhouse}",
		"postgres dsn":        "environment: x\nsource: {type: postgres}",
		"redis host":          "environment: x\nsource: {type: postgres}\npostgres: {dsn: d}\ncache: {type: redis}",
		"kafka brokers":       "environment: x\nsource: {type: postgres}\npostgres: {dsn: d}\nkafka: {enabled: true}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"PORT":          "9000",
		"SOURCE_TYPE":   "postgres",
		"POSTGRES_DSN":  "postgres://localhost/cov",
		"KAFKA_BROKERS": "a:9092,b:9092",
	}
	c.overrideFromEnv(func(k string) string { return env[k] })

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "postgres", c.Source.Type)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.NoError(t, c.Validate())
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Logger.Level)

	_, err = LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", c.Source.Type)
	assert.Equal(t, "covdash.snapshots", c.Kafka.SnapshotTopic)
	assert.True(t, c.Metrics.Enabled)
}
