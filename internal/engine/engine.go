// Package engine defines the narrow contract between the perception loop and
// a black-box inference runtime: load a model, negotiate tensor views inside
// a caller-owned arena, invoke.
package engine

import (
	"perception_loop/internal/arena"
)

// Engine loads compiled models for one runtime.
type Engine interface {
	// SchemaVersion is the model schema version this runtime expects.
	SchemaVersion() int64
	// Load parses model bytes. The bytes must stay valid for the model's
	// lifetime.
	Load(model []byte) (Model, error)
}

// AllocateOptions tune view negotiation.
type AllocateOptions struct {
	// OutputTail is the number of extra elements carved after the output
	// tensor. They are part of the output view but not of the tensor the
	// runtime writes.
	OutputTail int
}

// Model is a loaded model bound to one runtime.
type Model interface {
	// SchemaVersion is the version embedded in the model artifact.
	SchemaVersion() int64
	// Operators lists the operator kinds the model's graph uses.
	Operators() []Operator
	// Allocate negotiates the input and output views from the arena. It is
	// called once; a failure leaves the model unusable.
	Allocate(a *arena.Arena, opts AllocateOptions) (input, output *View, err error)
	// Invoke runs the model once, reading the input view and overwriting the
	// output view in place.
	Invoke() error
	// Close releases runtime resources.
	Close() error
}
