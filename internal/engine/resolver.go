package engine

import (
	"github.com/cockroachdb/errors"
)

// Operator names one kernel kind as it appears in a model graph.
type Operator string

var (
	ErrResolverFull        = errors.New("engine: operator resolver is full")
	ErrUnsupportedOperator = errors.New("engine: operator not registered")
)

// Resolver is a fixed-capacity allow-list of operator kernels. Only what is
// registered may run.
type Resolver struct {
	capacity int
	ops      []Operator
}

// NewResolver returns an empty resolver holding at most capacity operators.
func NewResolver(capacity int) *Resolver {
	return &Resolver{capacity: capacity, ops: make([]Operator, 0, capacity)}
}

// Add registers op. Registering an operator twice is a no-op.
func (r *Resolver) Add(op Operator) error {
	if r.Has(op) {
		return nil
	}
	if len(r.ops) >= r.capacity {
		return errors.Wrapf(ErrResolverFull, "cannot register %s (capacity %d)", op, r.capacity)
	}
	r.ops = append(r.ops, op)
	return nil
}

// Has reports whether op is registered.
func (r *Resolver) Has(op Operator) bool {
	for _, o := range r.ops {
		if o == op {
			return true
		}
	}
	return false
}

// Require checks that every operator in ops is registered.
func (r *Resolver) Require(ops []Operator) error {
	for _, op := range ops {
		if !r.Has(op) {
			return errors.Wrapf(ErrUnsupportedOperator, "model requires %s", op)
		}
	}
	return nil
}

// Operators returns the registered operators in registration order.
func (r *Resolver) Operators() []Operator {
	return append([]Operator(nil), r.ops...)
}
