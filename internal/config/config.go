// Package config loads the operating parameters of the perception loop.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PERCEPTION_DETECT_THRESHOLD.
const EnvPrefix = "PERCEPTION"

// Config is the complete configuration.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Frame   FrameConfig   `mapstructure:"frame"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Labels  []string      `mapstructure:"labels"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Storage StorageConfig `mapstructure:"storage"`
	Cycle   CycleConfig   `mapstructure:"cycle"`
	Log     LogConfig     `mapstructure:"log"`
}

// ModelConfig locates the model artifact on the image medium.
type ModelConfig struct {
	Path          string `mapstructure:"path"`
	SchemaVersion int64  `mapstructure:"schema_version"`
}

// EngineConfig sizes the arena and binds the runtime's tensors.
type EngineConfig struct {
	LibraryPath    string   `mapstructure:"library_path"`
	ArenaBytes     int      `mapstructure:"arena_bytes"`
	MaxOperators   int      `mapstructure:"max_operators"`
	Operators      []string `mapstructure:"operators"`
	InputName      string   `mapstructure:"input_name"`
	OutputName     string   `mapstructure:"output_name"`
	InputType      string   `mapstructure:"input_type"`
	InputLayout    string   `mapstructure:"input_layout"` // nhwc, nchw
	OutputShape    []int64  `mapstructure:"output_shape"`
	OutputTail     int      `mapstructure:"output_tail"`
	IntraOpThreads int      `mapstructure:"intra_op_threads"`
	InterOpThreads int      `mapstructure:"inter_op_threads"`
}

// FrameConfig describes the input image.
type FrameConfig struct {
	Kind     string `mapstructure:"kind"` // raw, image
	Path     string `mapstructure:"path"`
	Side     int    `mapstructure:"side"`
	Channels int    `mapstructure:"channels"`
	Policy   string `mapstructure:"policy"` // once, every_cycle
}

// DetectConfig holds decoder settings.
type DetectConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// SinkConfig selects where results go.
type SinkConfig struct {
	Kind string `mapstructure:"kind"` // file, console, sqlite
	Path string `mapstructure:"path"`
	Mode string `mapstructure:"mode"` // truncate, append
}

// StorageConfig maps the two media to host directories.
type StorageConfig struct {
	ImageRoot   string `mapstructure:"image_root"`
	ResultsRoot string `mapstructure:"results_root"`
}

// CycleConfig controls the loop.
type CycleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration from path (TOML, YAML or JSON by extension) on
// top of the defaults. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}
