package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Facet.DefaultLimit)
	assert.Equal(t, 1.5, cfg.Facet.OverrequestRatio)
	assert.Equal(t, 10, cfg.Facet.OverrequestCount)
	assert.Equal(t, 32, cfg.Coordinator.MaxRefinementRounds)
	assert.Equal(t, "static", cfg.Schema.Source)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yml := `
coordinator:
  tolerant: true
  perShardTimeout: 750ms
  shards:
    - id: 0
      addr: a:1
    - id: 1
      addr: b:2
schema:
  fields:
    - name: category
      type: string
      indexed: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("SP_LOGGING_LEVEL", "debug")
	t.Setenv("SP_SHARD_IDS", "3, 4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Coordinator.Tolerant)
	assert.Equal(t, 750*time.Millisecond, cfg.Coordinator.PerShardTimeout)
	assert.Equal(t, []ShardEndpoint{{ID: 0, Addr: "a:1"}, {ID: 1, Addr: "b:2"}}, cfg.Coordinator.Shards)
	require.Len(t, cfg.Schema.Fields, 1)
	assert.True(t, cfg.Schema.Fields[0].Indexed)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []int{3, 4}, cfg.Shard.ShardIDs)
	// untouched defaults survive a partial file
	assert.Equal(t, 100, cfg.Facet.DefaultLimit)
}

func TestShardListEnv(t *testing.T) {
	t.Setenv("SP_COORDINATOR_SHARDS", "0=n1:9100,1=n2:9100")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []ShardEndpoint{{ID: 0, Addr: "n1:9100"}, {ID: 1, Addr: "n2:9100"}}, cfg.Coordinator.Shards)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative ratio", func(c *Config) { c.Facet.OverrequestRatio = -1 }},
		{"negative count", func(c *Config) { c.Facet.OverrequestCount = -1 }},
		{"zero rounds", func(c *Config) { c.Coordinator.MaxRefinementRounds = 0 }},
		{"duplicate shard", func(c *Config) {
			c.Coordinator.Shards = []ShardEndpoint{{ID: 1}, {ID: 1}}
		}},
		{"bad schema source", func(c *Config) { c.Schema.Source = "etcd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseShardListRejectsMalformed(t *testing.T) {
	_, err := parseShardList("0:host")
	assert.Error(t, err)
	_, err = parseShardList("x=host")
	assert.Error(t, err)
}
