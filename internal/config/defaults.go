package config

import (
	"time"

	"github.com/spf13/viper"

	"perception_loop/internal/labels"
)

// DefaultOperators is the kernel allow-list for the reference detector.
var DefaultOperators = []string{
	"Conv", "Relu", "Sigmoid", "Add", "Mul",
	"Concat", "Reshape", "Softmax", "Gemm", "MaxPool",
}

// SetDefaults registers every default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.path", "models/detector.onnx")
	v.SetDefault("model.schema_version", 8)

	v.SetDefault("engine.library_path", "") // per-platform default
	v.SetDefault("engine.arena_bytes", 2<<20)
	v.SetDefault("engine.max_operators", 10)
	v.SetDefault("engine.operators", DefaultOperators)
	v.SetDefault("engine.input_name", "images")
	v.SetDefault("engine.output_name", "output0")
	v.SetDefault("engine.input_type", "uint8")
	v.SetDefault("engine.input_layout", "nhwc")
	v.SetDefault("engine.output_shape", []int64{1, 100, 6})
	v.SetDefault("engine.output_tail", 1) // last record's y_max
	v.SetDefault("engine.intra_op_threads", 1)
	v.SetDefault("engine.inter_op_threads", 1)

	v.SetDefault("frame.kind", "raw")
	v.SetDefault("frame.path", "image.jpg")
	v.SetDefault("frame.side", 640)
	v.SetDefault("frame.channels", 3)
	v.SetDefault("frame.policy", "once")

	v.SetDefault("detect.threshold", 0.5)

	v.SetDefault("labels", labels.Default)

	v.SetDefault("sink.kind", "file")
	v.SetDefault("sink.path", "results.txt")
	v.SetDefault("sink.mode", "truncate")

	v.SetDefault("storage.image_root", "data/flash")
	v.SetDefault("storage.results_root", "data/sd")

	v.SetDefault("cycle.interval", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "app.log")
}
