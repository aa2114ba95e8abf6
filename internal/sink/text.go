package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// Mode selects how the results file is updated.
type Mode string

const (
	// Truncate replaces the file with the latest batch.
	Truncate Mode = "truncate"
	// Append adds the batch to the end of the file.
	Append Mode = "append"
)

// FormatRecord renders r in the results file layout:
//
//	Class: <name>, Score: <0.00>, BBox: [<x_min>, <y_min>, <x_max>, <y_max>]
//
// Unknown classes render their name as "unknown class ID <id>".
func FormatRecord(r Record) string {
	d := r.Detection
	return fmt.Sprintf("Class: %s, Score: %.2f, BBox: [%.2f, %.2f, %.2f, %.2f]",
		r.Label, d.Score, d.Box[0], d.Box[1], d.Box[2], d.Box[3])
}

// TextFile writes batches to a file on fs, one record per line.
type TextFile struct {
	fs   afero.Fs
	path string
	mode Mode
}

// NewTextFile returns a text sink. An empty mode means Truncate.
func NewTextFile(fs afero.Fs, path string, mode Mode) *TextFile {
	if mode == "" {
		mode = Truncate
	}
	return &TextFile{fs: fs, path: path, mode: mode}
}

// Write implements Sink. In Truncate mode the batch goes to a temporary
// file that is renamed over the target, so a failure leaves the previous
// results intact.
func (s *TextFile) Write(_ context.Context, b Batch) error {
	var buf bytes.Buffer
	for _, r := range b.Records {
		buf.WriteString(FormatRecord(r))
		buf.WriteByte('\n')
	}

	var err error
	switch s.mode {
	case Truncate:
		err = s.replace(buf.Bytes())
	case Append:
		err = s.append(buf.Bytes())
	default:
		err = errors.Newf("unknown mode %q", s.mode)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "results file %s", s.path), ErrWrite)
	}
	return nil
}

func (s *TextFile) replace(data []byte) error {
	tmp := s.path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	if err := writeAndClose(f, data); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *TextFile) append(data []byte) error {
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	return writeAndClose(f, data)
}

func writeAndClose(f io.WriteCloser, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "write")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	return nil
}
