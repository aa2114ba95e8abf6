// Package detect turns the flat output tensor of a detection model into
// thresholded detections.
//
// The tensor is read as packed records of RecordStride float32 elements.
// Record i starts at element i*RecordStride. Offset 0 is reserved (batch)
// and never read; the last box field sits at offset 6, which is also the
// reserved slot of record i+1. N records therefore span N*RecordStride+1
// elements. This layout is a contract with the model, not something that
// can be discovered from the tensor.
package detect

import (
	"github.com/cockroachdb/errors"

	"perception_loop/internal/engine"
)

// Record layout.
const (
	RecordStride = 6

	OffsetReserved = 0
	OffsetClass    = 1
	OffsetScore    = 2
	OffsetXMin     = 3
	OffsetYMin     = 4
	OffsetXMax     = 5
	OffsetYMax     = 6

	// recordSpan is the number of elements one record touches.
	recordSpan = OffsetYMax + 1
)

// DefaultThreshold is the confidence a record must exceed to be kept.
const DefaultThreshold = 0.5

var (
	ErrMalformedShape = errors.New("detect: output shape has no record dimension")
	ErrTensorTooShort = errors.New("detect: output buffer shorter than declared records")
	ErrNotFloat       = errors.New("detect: output view is not float32")
)

// Box is [x_min, y_min, x_max, y_max] in the model's coordinate space.
type Box [4]float32

// Detection is one record that passed the threshold.
type Detection struct {
	// Index is the record's position in the tensor.
	Index   int
	ClassID int
	Score   float32
	Box     Box
}

// Decoder applies a fixed threshold. The zero value keeps every record
// with a positive score.
type Decoder struct {
	Threshold float32
}

// NewDecoder returns a Decoder with the given threshold.
func NewDecoder(threshold float32) Decoder {
	return Decoder{Threshold: threshold}
}

// Records returns the number of candidate records the shape declares.
// Dimension 0 is the batch; dimension 1 counts records.
func Records(shape engine.Shape) (int, error) {
	if len(shape) < 2 {
		return 0, errors.Wrapf(ErrMalformedShape, "rank %d", len(shape))
	}
	n := shape[1]
	if n < 0 {
		return 0, errors.Wrapf(ErrMalformedShape, "record count %d", n)
	}
	return int(n), nil
}

// Decode reads the records declared by v's shape.
func (d Decoder) Decode(v *engine.View) ([]Detection, error) {
	if v.Type != engine.Float32 {
		return nil, ErrNotFloat
	}
	n, err := Records(v.Shape)
	if err != nil {
		return nil, err
	}
	return d.DecodeFloats(v.Float32s(), n)
}

// DecodeFloats reads n records from data.
func (d Decoder) DecodeFloats(data []float32, n int) ([]Detection, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrMalformedShape, "record count %d", n)
	}
	if n == 0 {
		return []Detection{}, nil
	}
	// n records span 6n+1 elements; compared by division so a huge n
	// cannot wrap.
	if n > (len(data)-1)/RecordStride {
		return nil, errors.Wrapf(ErrTensorTooShort, "%d records do not fit in %d elements", n, len(data))
	}

	dets := make([]Detection, 0, n)
	for i := 0; i < n; i++ {
		r := data[i*RecordStride : i*RecordStride+recordSpan]
		if !(r[OffsetScore] > d.Threshold) {
			continue
		}
		dets = append(dets, Detection{
			Index:   i,
			ClassID: int(r[OffsetClass]),
			Score:   r[OffsetScore],
			Box:     Box{r[OffsetXMin], r[OffsetYMin], r[OffsetXMax], r[OffsetYMax]},
		})
	}
	return dets, nil
}
