// Package inference owns the compiled model, the arena and the negotiated
// tensor views, and runs one invocation per cycle.
package inference

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"perception_loop/internal/arena"
	"perception_loop/internal/engine"
)

var (
	ErrModelLoad           = errors.New("inference: model load failed")
	ErrSchemaMismatch      = errors.New("inference: model schema version not supported")
	ErrUnsupportedOperator = engine.ErrUnsupportedOperator
	ErrArenaTooSmall       = errors.New("inference: arena too small for model tensors")
	ErrViewOverlap         = errors.New("inference: input and output views overlap")
	ErrAlreadyPrepared     = errors.New("inference: adapter already prepared")
	ErrNotPrepared         = errors.New("inference: adapter not prepared")
	ErrInputSize           = errors.New("inference: input size does not match input view")
	ErrBusy                = errors.New("inference: invocation already in flight")
	ErrInvokeFailed        = errors.New("inference: invoke failed")
)

// Options control view negotiation.
type Options struct {
	// OutputTail is forwarded to engine.AllocateOptions.
	OutputTail int
	// Layout is the input view's dimension order. Frames are always
	// interleaved; NCHW inputs are filled one channel plane at a time.
	Layout engine.Layout
}

// Adapter drives one model through the engine contract. It is not safe for
// concurrent use; a second concurrent Run fails with ErrBusy.
type Adapter struct {
	eng      engine.Engine
	resolver *engine.Resolver
	arena    *arena.Arena
	opts     Options
	log      *logrus.Entry

	mu       sync.Mutex
	model    engine.Model
	input    *engine.View
	output   *engine.View
	prepared bool
}

// NewAdapter wires an engine, an operator allow-list and an arena.
func NewAdapter(eng engine.Engine, resolver *engine.Resolver, a *arena.Arena, opts Options, log *logrus.Entry) *Adapter {
	return &Adapter{
		eng:      eng,
		resolver: resolver,
		arena:    a,
		opts:     opts,
		log:      log,
	}
}

// Prepare loads the model, checks its schema version and operators, and
// negotiates the views. On failure the adapter stays unprepared and the
// arena is zeroed.
func (a *Adapter) Prepare(modelBytes []byte) (err error) {
	if a.prepared {
		return ErrAlreadyPrepared
	}

	m, err := a.eng.Load(modelBytes)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "load model"), ErrModelLoad)
	}
	defer func() {
		if err != nil {
			if cerr := m.Close(); cerr != nil {
				a.log.WithError(cerr).Warn("Failed to release model after setup failure")
			}
			a.arena.Zero()
			a.arena.Reset()
		}
	}()

	if got, want := m.SchemaVersion(), a.eng.SchemaVersion(); got != want {
		return errors.WithHintf(
			errors.Wrapf(ErrSchemaMismatch, "model version %d, engine expects %d", got, want),
			"re-export the model for schema version %d or set model.schema_version", want)
	}

	if err := a.resolver.Require(m.Operators()); err != nil {
		return errors.WithHint(err, "add the operator to engine.operators")
	}

	a.arena.Reset()
	in, out, err := m.Allocate(a.arena, engine.AllocateOptions{OutputTail: a.opts.OutputTail})
	if err != nil {
		if errors.Is(err, arena.ErrExhausted) {
			return errors.WithHintf(
				errors.Mark(errors.Wrapf(err, "arena capacity %d", a.arena.Capacity()), ErrArenaTooSmall),
				"increase engine.arena_bytes")
		}
		return errors.Wrap(err, "allocate tensors")
	}
	if in == nil || out == nil {
		return errors.New("inference: engine returned no tensor views")
	}
	if in.Region.Overlaps(out.Region) {
		return ErrViewOverlap
	}
	if a.opts.Layout == engine.NCHW && (len(in.Shape) != 4 || in.Shape[1] <= 0) {
		return errors.Newf("inference: nchw layout needs a 4-D input, got %s", in.Shape)
	}

	a.model, a.input, a.output = m, in, out
	a.prepared = true
	a.log.WithFields(logrus.Fields{
		"input":       in.Shape.String(),
		"output":      out.Shape.String(),
		"arena_used":  a.arena.Used(),
		"arena_bytes": a.arena.Capacity(),
		"operators":   len(m.Operators()),
	}).Info("Model prepared")
	return nil
}

// Prepared reports whether Prepare succeeded.
func (a *Adapter) Prepared() bool { return a.prepared }

// Input returns the negotiated input view, nil before Prepare.
func (a *Adapter) Input() *engine.View { return a.input }

// InputSize is the number of frame bytes Run expects, 0 before Prepare.
func (a *Adapter) InputSize() int {
	if a.input == nil {
		return 0
	}
	return a.input.Elements()
}

// Run copies input into the input view, clears the output view and invokes
// the model once. The returned view is overwritten by the next Run.
func (a *Adapter) Run(input []byte) (*engine.View, error) {
	if !a.mu.TryLock() {
		return nil, ErrBusy
	}
	defer a.mu.Unlock()

	if !a.prepared {
		return nil, ErrNotPrepared
	}
	if len(input) != a.input.Elements() {
		return nil, errors.Wrapf(ErrInputSize, "got %d bytes, view %s holds %d", len(input), a.input.Shape, a.input.Elements())
	}

	if err := a.fill(input); err != nil {
		return nil, err
	}
	a.output.Clear()

	if err := a.model.Invoke(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invoke"), ErrInvokeFailed)
	}
	return a.output, nil
}

// Close releases the model.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model, a.input, a.output = nil, nil, nil
	a.prepared = false
	return err
}

// fill copies an interleaved frame into the input view, converting to the
// view's element type and layout.
func (a *Adapter) fill(input []byte) error {
	channels, plane := 1, len(input)
	if a.opts.Layout == engine.NCHW {
		channels = int(a.input.Shape[1])
		plane = len(input) / channels
	}
	at := func(i int) int { return i%channels*plane + i/channels }

	switch a.input.Type {
	case engine.Uint8:
		dst := a.input.Uint8s()
		if channels == 1 {
			copy(dst, input)
			return nil
		}
		for i, b := range input {
			dst[at(i)] = b
		}
	case engine.Float32:
		dst := a.input.Float32s()
		for i, b := range input {
			dst[at(i)] = float32(b) / 255.0
		}
	default:
		return errors.Newf("inference: unsupported input type %s", a.input.Type)
	}
	return nil
}
