package engine

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"

	"perception_loop/internal/arena"
)

// DataType is the element type of a tensor view.
type DataType int

const (
	Uint8 DataType = iota + 1
	Float32
)

// Size returns the element width in bytes.
func (t DataType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Float32:
		return 4
	}
	return 0
}

func (t DataType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType accepts the names returned by String.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint8", "u8":
		return Uint8, nil
	case "float32", "f32", "float":
		return Float32, nil
	}
	return 0, errors.Newf("engine: unknown data type %q", s)
}

// Layout is the dimension order of a 4-D image input.
type Layout int

const (
	// NHWC interleaves channels per pixel, the layout frames arrive in.
	NHWC Layout = iota
	// NCHW stores one plane per channel.
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "nchw"
	}
	return "nhwc"
}

// ParseLayout accepts "nhwc" and "nchw". Empty means NHWC.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nhwc":
		return NHWC, nil
	case "nchw":
		return NCHW, nil
	}
	return 0, errors.Newf("engine: unknown input layout %q", s)
}

// ImageShape returns the 4-D shape of a single side x side frame.
func (l Layout) ImageShape(side, channels int) Shape {
	if l == NCHW {
		return Shape{1, int64(channels), int64(side), int64(side)}
	}
	return Shape{1, int64(side), int64(side), int64(channels)}
}

// Shape is a tensor shape. Negative dimensions are dynamic.
type Shape []int64

// Elements returns the product of all dimensions, or -1 if any is dynamic.
func (s Shape) Elements() int64 {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

// Static reports whether every dimension is known.
func (s Shape) Static() bool { return s.Elements() >= 0 }

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Clone returns a copy of s.
func (s Shape) Clone() Shape { return append(Shape(nil), s...) }

// View is a typed window into an arena region.
type View struct {
	Name   string
	Type   DataType
	Shape  Shape
	Region arena.Region
}

// ViewSpec describes a view to carve.
type ViewSpec struct {
	Name  string
	Type  DataType
	Shape Shape
	// Tail is a number of extra elements carved after the tensor.
	Tail int
}

// Carve allocates a view described by spec from a.
func Carve(a *arena.Arena, spec ViewSpec) (*View, error) {
	if spec.Type.Size() == 0 {
		return nil, errors.Newf("engine: view %q has no element type", spec.Name)
	}
	n := spec.Shape.Elements()
	if n < 0 {
		return nil, errors.Newf("engine: view %q has dynamic shape %s", spec.Name, spec.Shape)
	}
	if spec.Tail < 0 {
		return nil, errors.Newf("engine: view %q has negative tail", spec.Name)
	}
	size := (int(n) + spec.Tail) * spec.Type.Size()
	r, err := a.Alloc(size, arena.DefaultAlign)
	if err != nil {
		return nil, errors.Wrapf(err, "carve %s %s %s", spec.Name, spec.Type, spec.Shape)
	}
	return &View{Name: spec.Name, Type: spec.Type, Shape: spec.Shape.Clone(), Region: r}, nil
}

// Elements is the element count of the tensor, excluding any tail.
func (v *View) Elements() int { return int(v.Shape.Elements()) }

// Bytes returns the whole region, tail included.
func (v *View) Bytes() []byte { return v.Region.Data }

// Uint8s returns the region as bytes, tail included. Nil if the view is not
// uint8.
func (v *View) Uint8s() []uint8 {
	if v.Type != Uint8 {
		return nil
	}
	return v.Region.Data
}

// Float32s reinterprets the region as float32 elements, tail included. Nil
// if the view is not float32.
func (v *View) Float32s() []float32 {
	if v.Type != Float32 || len(v.Region.Data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&v.Region.Data[0])), len(v.Region.Data)/4)
}

// Clear zeroes the region.
func (v *View) Clear() { clear(v.Region.Data) }
