package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// FormatConsole renders r the way the serial console prints detections.
func FormatConsole(r Record) string {
	if !r.Label.Known {
		return fmt.Sprintf("Detected object with unknown class ID %d and confidence: %f",
			r.Label.ID, r.Detection.Score)
	}
	return fmt.Sprintf("Detected object: %s with confidence: %f", r.Label.Name, r.Detection.Score)
}

// Console prints batches to a writer, typically stdout.
type Console struct {
	w io.Writer
}

// NewConsole returns a console sink over w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Write implements Sink.
func (c *Console) Write(_ context.Context, b Batch) error {
	var buf bytes.Buffer
	for _, r := range b.Records {
		buf.WriteString(FormatConsole(r))
		buf.WriteByte('\n')
	}
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return errors.Mark(errors.Wrap(err, "console"), ErrWrite)
	}
	return nil
}
