package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "models/detector.onnx", cfg.Model.Path)
	assert.Equal(t, int64(8), cfg.Model.SchemaVersion)
	assert.Equal(t, 2<<20, cfg.Engine.ArenaBytes)
	assert.Equal(t, 10, cfg.Engine.MaxOperators)
	assert.Equal(t, DefaultOperators, cfg.Engine.Operators)
	assert.Equal(t, "nhwc", cfg.Engine.InputLayout)
	assert.Equal(t, []int64{1, 100, 6}, cfg.Engine.OutputShape)
	assert.Equal(t, 1, cfg.Engine.OutputTail)
	assert.Equal(t, 640, cfg.Frame.Side)
	assert.Equal(t, 3, cfg.Frame.Channels)
	assert.Equal(t, "once", cfg.Frame.Policy)
	assert.Equal(t, 0.5, cfg.Detect.Threshold)
	assert.Equal(t, []string{"person", "bicycle", "car"}, cfg.Labels)
	assert.Equal(t, "file", cfg.Sink.Kind)
	assert.Equal(t, "truncate", cfg.Sink.Mode)
	assert.Equal(t, 10*time.Second, cfg.Cycle.Interval)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perception.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
labels = ["cat", "dog"]

[detect]
threshold = 0.7

[frame]
kind = "image"
policy = "every_cycle"

[sink]
kind = "console"

[cycle]
interval = "250ms"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Detect.Threshold)
	assert.Equal(t, "image", cfg.Frame.Kind)
	assert.Equal(t, "every_cycle", cfg.Frame.Policy)
	assert.Equal(t, "console", cfg.Sink.Kind)
	assert.Equal(t, []string{"cat", "dog"}, cfg.Labels)
	assert.Equal(t, 250*time.Millisecond, cfg.Cycle.Interval)
	assert.Equal(t, 640, cfg.Frame.Side, "unset keys keep defaults")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PERCEPTION_DETECT_THRESHOLD", "0.25")
	t.Setenv("PERCEPTION_ENGINE_ARENA_BYTES", "4096")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Detect.Threshold)
	assert.Equal(t, 4096, cfg.Engine.ArenaBytes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model", func(c *Config) { c.Model.Path = "" }},
		{"bad schema", func(c *Config) { c.Model.SchemaVersion = 0 }},
		{"no arena", func(c *Config) { c.Engine.ArenaBytes = 0 }},
		{"too many ops", func(c *Config) { c.Engine.MaxOperators = 2 }},
		{"input type", func(c *Config) { c.Engine.InputType = "int8" }},
		{"input layout", func(c *Config) { c.Engine.InputLayout = "chw" }},
		{"frame kind", func(c *Config) { c.Frame.Kind = "camera" }},
		{"frame side", func(c *Config) { c.Frame.Side = 0 }},
		{"frame policy", func(c *Config) { c.Frame.Policy = "sometimes" }},
		{"threshold", func(c *Config) { c.Detect.Threshold = 1.5 }},
		{"labels", func(c *Config) { c.Labels = nil }},
		{"sink kind", func(c *Config) { c.Sink.Kind = "mqtt" }},
		{"sink path", func(c *Config) { c.Sink.Path = "" }},
		{"sink mode", func(c *Config) { c.Sink.Mode = "rotate" }},
		{"storage", func(c *Config) { c.Storage.ResultsRoot = "" }},
		{"interval", func(c *Config) { c.Cycle.Interval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidateConsoleNeedsNoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Sink.Kind = "console"
	cfg.Sink.Path = ""
	cfg.Sink.Mode = ""
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "truncate", cfg.Sink.Mode)
}
