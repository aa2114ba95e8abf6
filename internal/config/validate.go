package config

import (
	"github.com/cockroachdb/errors"
)

// Validate rejects configurations the loop cannot run with and normalizes
// enumerations.
func Validate(cfg *Config) error {
	if cfg.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if cfg.Model.SchemaVersion <= 0 {
		return errors.New("model.schema_version must be > 0")
	}

	e := &cfg.Engine
	if e.ArenaBytes <= 0 {
		return errors.New("engine.arena_bytes must be > 0")
	}
	if e.MaxOperators <= 0 {
		return errors.New("engine.max_operators must be > 0")
	}
	if len(e.Operators) > e.MaxOperators {
		return errors.Newf("engine.operators lists %d kernels, max_operators is %d",
			len(e.Operators), e.MaxOperators)
	}
	switch e.InputType {
	case "uint8", "float32":
	default:
		return errors.Newf("engine.input_type must be uint8 or float32, got %q", e.InputType)
	}
	switch e.InputLayout {
	case "nhwc", "nchw":
	default:
		return errors.Newf("engine.input_layout must be nhwc or nchw, got %q", e.InputLayout)
	}
	if e.OutputTail < 0 {
		return errors.New("engine.output_tail must be >= 0")
	}

	f := &cfg.Frame
	switch f.Kind {
	case "raw", "image":
	default:
		return errors.Newf("frame.kind must be raw or image, got %q", f.Kind)
	}
	if f.Path == "" {
		return errors.New("frame.path is required")
	}
	if f.Side <= 0 {
		return errors.New("frame.side must be > 0")
	}
	if f.Channels <= 0 {
		return errors.New("frame.channels must be > 0")
	}
	switch f.Policy {
	case "once", "every_cycle":
	default:
		return errors.Newf("frame.policy must be once or every_cycle, got %q", f.Policy)
	}

	if t := cfg.Detect.Threshold; t < 0 || t > 1 {
		return errors.Newf("detect.threshold must be within [0, 1], got %v", t)
	}

	if len(cfg.Labels) == 0 {
		return errors.New("labels must not be empty")
	}

	s := &cfg.Sink
	switch s.Kind {
	case "file", "sqlite":
		if s.Path == "" {
			return errors.Newf("sink.path is required for sink.kind %s", s.Kind)
		}
	case "console":
	default:
		return errors.Newf("sink.kind must be file, console or sqlite, got %q", s.Kind)
	}
	if s.Mode == "" {
		s.Mode = "truncate"
	}
	if s.Mode != "truncate" && s.Mode != "append" {
		return errors.Newf("sink.mode must be truncate or append, got %q", s.Mode)
	}

	if cfg.Storage.ImageRoot == "" || cfg.Storage.ResultsRoot == "" {
		return errors.New("storage.image_root and storage.results_root are required")
	}

	if cfg.Cycle.Interval < 0 {
		return errors.New("cycle.interval must be >= 0")
	}
	return nil
}
