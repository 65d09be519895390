package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/pcgbridge/pkg/build"
	"github.com/chazu/pcgbridge/pkg/geom"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcgbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, build.DefaultPrefix, cfg.Prefix())
	conv, err := cfg.Conversion()
	require.NoError(t, err)
	assert.Equal(t, geom.UnrealConversion, conv)
	assert.Equal(t, 5*time.Second, cfg.ScriptTimeout)
	assert.True(t, cfg.UploadRotAndScale)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
attribute_prefix: ""
basis: identity
unit_scale: 1
gate_parts: true
upload_rot_and_scale: false
log_level: debug
script_timeout: 250ms
parallelism: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Prefix(), "explicit empty prefix is kept")
	assert.True(t, cfg.GateParts)
	assert.False(t, cfg.UploadRotAndScale)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.ScriptTimeout)
	assert.Equal(t, 2, cfg.Parallelism)
	conv, err := cfg.Conversion()
	require.NoError(t, err)
	assert.Equal(t, geom.IdentityConversion, conv)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "basis: identity\nunit_scale: 1\n")
	t.Setenv("PCGBRIDGE_BASIS", "unreal")
	t.Setenv("PCGBRIDGE_UNIT_SCALE", "100")
	t.Setenv("PCGBRIDGE_ATTRIBUTE_PREFIX", "my_")
	t.Setenv("PCGBRIDGE_PARALLELISM", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "my_", cfg.Prefix())
	assert.Equal(t, 8, cfg.Parallelism)
	conv, err := cfg.Conversion()
	require.NoError(t, err)
	assert.Equal(t, geom.UnrealConversion, conv)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config: read")

	_, err = Load(writeFile(t, "basis: [unterminated"))
	assert.ErrorContains(t, err, "config: parse")

	t.Setenv("PCGBRIDGE_PARALLELISM", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "config: parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad basis", func(c *Config) { c.Basis = "z-up" }, "unknown basis"},
		{"zero scale", func(c *Config) { c.UnitScale = 0 }, "unit_scale"},
		{"zero timeout", func(c *Config) { c.ScriptTimeout = 0 }, "script_timeout"},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, "parallelism"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}
