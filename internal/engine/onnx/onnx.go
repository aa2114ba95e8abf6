// Package onnx runs models through ONNX Runtime with every tensor placed in
// the caller's arena.
package onnx

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"perception_loop/internal/arena"
	"perception_loop/internal/engine"
)

var ErrShapeMismatch = errors.New("onnx: tensor shape mismatch")

// Options configure the runtime and the tensors bound to a session.
type Options struct {
	LibraryPath   string
	SchemaVersion int64

	InputName  string
	OutputName string
	InputType  engine.DataType
	// InputShape and OutputShape fill in dimensions the model leaves
	// dynamic. Static model dimensions must agree with them.
	InputShape  engine.Shape
	OutputShape engine.Shape

	IntraOpThreads int
	InterOpThreads int
}

// Engine is an engine.Engine backed by ONNX Runtime.
type Engine struct {
	opts Options
	log  *logrus.Entry
}

// New initializes the ONNX Runtime environment.
func New(opts Options, log *logrus.Entry) (*Engine, error) {
	if opts.LibraryPath == "" {
		opts.LibraryPath = SharedLibPath()
	}
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(opts.LibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.WithHint(
				errors.Wrapf(err, "initialize onnxruntime from %s", opts.LibraryPath),
				"set engine.library_path to a valid onnxruntime shared library")
		}
	}
	log.WithField("library", opts.LibraryPath).Info("ONNX Runtime environment initialized")
	return &Engine{opts: opts, log: log}, nil
}

// SchemaVersion implements engine.Engine.
func (e *Engine) SchemaVersion() int64 { return e.opts.SchemaVersion }

// Load implements engine.Engine.
func (e *Engine) Load(data []byte) (engine.Model, error) {
	h, err := inspect(data)
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"ir_version": h.irVersion,
		"operators":  len(h.operators),
	}).Debug("Model header parsed")
	return &model{e: e, data: data, header: h}, nil
}

// Close tears the runtime environment down.
func (e *Engine) Close() error {
	return ort.DestroyEnvironment()
}

type model struct {
	e      *Engine
	data   []byte
	header header

	session *ort.AdvancedSession
	input   ort.ArbitraryTensor
	output  ort.ArbitraryTensor
}

func (m *model) SchemaVersion() int64 { return m.header.irVersion }

func (m *model) Operators() []engine.Operator { return m.header.operators }

func (m *model) Allocate(a *arena.Arena, opts engine.AllocateOptions) (*engine.View, *engine.View, error) {
	if m.session != nil {
		return nil, nil, errors.New("onnx: model already allocated")
	}
	o := m.e.opts

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(m.data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "onnx: read input/output info")
	}
	inInfo, err := findInfo(inputs, o.InputName)
	if err != nil {
		return nil, nil, err
	}
	outInfo, err := findInfo(outputs, o.OutputName)
	if err != nil {
		return nil, nil, err
	}

	inShape, err := negotiate(toShape(inInfo.Dimensions), o.InputShape)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "input %s", inInfo.Name)
	}
	outShape, err := negotiate(toShape(outInfo.Dimensions), o.OutputShape)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "output %s", outInfo.Name)
	}
	if outInfo.DataType != ort.TensorElementDataTypeFloat {
		return nil, nil, errors.Newf("onnx: output %s must be float32", outInfo.Name)
	}

	inView, err := engine.Carve(a, engine.ViewSpec{Name: inInfo.Name, Type: o.InputType, Shape: inShape})
	if err != nil {
		return nil, nil, err
	}
	outView, err := engine.Carve(a, engine.ViewSpec{
		Name: outInfo.Name, Type: engine.Float32, Shape: outShape, Tail: opts.OutputTail,
	})
	if err != nil {
		return nil, nil, err
	}

	in, err := bindTensor(inView)
	if err != nil {
		return nil, nil, err
	}
	out, err := ort.NewTensor(ort.NewShape(outShape...), outView.Float32s()[:outView.Elements()])
	if err != nil {
		in.Destroy()
		return nil, nil, errors.Wrap(err, "onnx: bind output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, nil, errors.Wrap(err, "onnx: session options")
	}
	defer options.Destroy()

	// One logical task drives the device; keep the runtime on one thread.
	if o.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(o.IntraOpThreads)
	}
	if o.InterOpThreads > 0 {
		options.SetInterOpNumThreads(o.InterOpThreads)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		m.data,
		[]string{inInfo.Name},
		[]string{outInfo.Name},
		[]ort.ArbitraryTensor{in},
		[]ort.ArbitraryTensor{out},
		options,
	)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, nil, errors.Wrap(err, "onnx: create session")
	}

	m.session, m.input, m.output = session, in, out
	return inView, outView, nil
}

func (m *model) Invoke() error {
	if m.session == nil {
		return errors.New("onnx: model not allocated")
	}
	return m.session.Run()
}

func (m *model) Close() error {
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func bindTensor(v *engine.View) (ort.ArbitraryTensor, error) {
	shape := ort.NewShape(v.Shape...)
	var (
		t   ort.ArbitraryTensor
		err error
	)
	switch v.Type {
	case engine.Uint8:
		t, err = ort.NewTensor(shape, v.Uint8s()[:v.Elements()])
	case engine.Float32:
		t, err = ort.NewTensor(shape, v.Float32s()[:v.Elements()])
	default:
		return nil, errors.Newf("onnx: unsupported input type %s", v.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "onnx: bind input tensor %s", v.Name)
	}
	return t, nil
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, errors.New("onnx: model declares no tensors")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, errors.Newf("onnx: model has no tensor named %q", name)
}

func toShape(s ort.Shape) engine.Shape {
	return append(engine.Shape(nil), s...)
}

// negotiate merges the model's declared shape with the configured one.
// Dynamic model dimensions take the configured value; static ones must match
// it when it is given.
func negotiate(declared, want engine.Shape) (engine.Shape, error) {
	if len(want) == 0 {
		if !declared.Static() {
			return nil, errors.Wrapf(ErrShapeMismatch, "model shape %s is dynamic and no shape is configured", declared)
		}
		return declared.Clone(), nil
	}
	if len(declared) != len(want) {
		return nil, errors.Wrapf(ErrShapeMismatch, "model rank %d (%s), configured %s", len(declared), declared, want)
	}
	out := make(engine.Shape, len(declared))
	for i := range declared {
		switch d, w := declared[i], want[i]; {
		case d > 0 && w > 0 && d != w:
			return nil, errors.Wrapf(ErrShapeMismatch, "dimension %d: model %d, configured %d", i, d, w)
		case d > 0:
			out[i] = d
		case w > 0:
			out[i] = w
		default:
			return nil, errors.Wrapf(ErrShapeMismatch, "dimension %d is unresolved", i)
		}
	}
	return out, nil
}

// SharedLibPath returns the default onnxruntime shared library for this
// platform.
func SharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.dylib"
		}
		return "./third_party/onnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}
