// Package enginetest provides a scripted engine for exercising the adapter
// and the cycle controller without a real runtime.
package enginetest

import (
	"github.com/cockroachdb/errors"

	"perception_loop/internal/arena"
	"perception_loop/internal/engine"
)

// ErrInvoke is what scripted invocations fail with.
var ErrInvoke = errors.New("enginetest: scripted invoke failure")

// InvokeFunc fills out from in. Returning an error fails the invocation.
type InvokeFunc func(call int, in, out *engine.View) error

// Engine is a configurable engine.Engine.
type Engine struct {
	Version      int64
	ModelVersion int64
	Ops          []engine.Operator
	InputType    engine.DataType
	InputShape   engine.Shape
	OutputShape  engine.Shape
	// Scratch is working memory carved between the two views, standing in
	// for the runtime's intermediate tensors.
	Scratch int
	Invoke  InvokeFunc
	LoadErr error

	Loaded []*Model
}

// SchemaVersion implements engine.Engine.
func (e *Engine) SchemaVersion() int64 { return e.Version }

// Load implements engine.Engine.
func (e *Engine) Load(b []byte) (engine.Model, error) {
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	if len(b) == 0 {
		return nil, errors.New("enginetest: empty model")
	}
	m := &Model{e: e}
	e.Loaded = append(e.Loaded, m)
	return m, nil
}

// Model is the model produced by Engine.Load.
type Model struct {
	e       *Engine
	in, out *engine.View
	Calls   int
	Closed  bool
}

// SchemaVersion implements engine.Model.
func (m *Model) SchemaVersion() int64 { return m.e.ModelVersion }

// Operators implements engine.Model.
func (m *Model) Operators() []engine.Operator { return m.e.Ops }

// Allocate implements engine.Model.
func (m *Model) Allocate(a *arena.Arena, opts engine.AllocateOptions) (*engine.View, *engine.View, error) {
	inType := m.e.InputType
	if inType == 0 {
		inType = engine.Uint8
	}
	in, err := engine.Carve(a, engine.ViewSpec{Name: "input", Type: inType, Shape: m.e.InputShape})
	if err != nil {
		return nil, nil, err
	}
	if m.e.Scratch > 0 {
		if _, err := a.Alloc(m.e.Scratch, 0); err != nil {
			return nil, nil, errors.Wrap(err, "scratch")
		}
	}
	out, err := engine.Carve(a, engine.ViewSpec{
		Name: "output", Type: engine.Float32, Shape: m.e.OutputShape, Tail: opts.OutputTail,
	})
	if err != nil {
		return nil, nil, err
	}
	m.in, m.out = in, out
	return in, out, nil
}

// Invoke implements engine.Model.
func (m *Model) Invoke() error {
	m.Calls++
	if m.e.Invoke == nil {
		return nil
	}
	return m.e.Invoke(m.Calls, m.in, m.out)
}

// Close implements engine.Model.
func (m *Model) Close() error {
	m.Closed = true
	return nil
}

// Records returns an InvokeFunc that writes recs into the output view using
// the packed stride-6 detection layout. Each rec is {class, score, x0, y0,
// x1, y1}.
func Records(recs ...[6]float32) InvokeFunc {
	return func(_ int, _, out *engine.View) error {
		WriteRecords(out.Float32s(), recs...)
		return nil
	}
}

// WriteRecords lays recs into dst. Record i starts at 6*i; offset 0 is
// reserved and offset 6 overlaps the next record's reserved slot.
func WriteRecords(dst []float32, recs ...[6]float32) {
	for i, r := range recs {
		base := i * 6
		copy(dst[base+1:base+7], r[:])
	}
}

// FailOn returns an InvokeFunc that fails on the listed call numbers and
// delegates otherwise.
func FailOn(next InvokeFunc, calls ...int) InvokeFunc {
	return func(call int, in, out *engine.View) error {
		for _, c := range calls {
			if c == call {
				return ErrInvoke
			}
		}
		if next == nil {
			return nil
		}
		return next(call, in, out)
	}
}
