// Package sink publishes each cycle's detections.
package sink

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"perception_loop/internal/detect"
	"perception_loop/internal/labels"
)

// ErrWrite marks every sink failure. A failed Write means nothing from the
// batch is committed, although a prefix may already be on the medium.
var ErrWrite = errors.New("sink: write failed")

// Record is one detection with its resolved label.
type Record struct {
	Label     labels.Label
	Detection detect.Detection
}

// Batch is everything one cycle reports.
type Batch struct {
	RunID   string
	Cycle   uint64
	Time    time.Time
	Records []Record
}

// Sink writes whole batches.
type Sink interface {
	Write(ctx context.Context, b Batch) error
}
