// Package frame fills the fixed-size frame buffer from storage.
package frame

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

var (
	ErrUnavailable    = errors.New("frame: source unavailable")
	ErrIncompleteRead = errors.New("frame: incomplete read")
	ErrBufferSize     = errors.New("frame: buffer does not match frame format")
)

// Format is the fixed geometry of every frame: a square of Side pixels with
// Channels interleaved bytes per pixel.
type Format struct {
	Side     int
	Channels int
}

// Size is the byte length of one frame.
func (f Format) Size() int { return f.Side * f.Side * f.Channels }

// NewBuffer allocates one frame buffer.
func (f Format) NewBuffer() []byte { return make([]byte, f.Size()) }

// Source produces frames into a caller-owned buffer.
type Source interface {
	// Open checks that the source can be read.
	Open() error
	// Read fills dst completely or fails.
	Read(dst []byte) error
}

// RawFile reads frames stored as exactly Format.Size() raw bytes.
type RawFile struct {
	fs     afero.Fs
	path   string
	format Format
}

// NewRawFile returns a source for the file at path on fs.
func NewRawFile(fs afero.Fs, path string, format Format) *RawFile {
	return &RawFile{fs: fs, path: path, format: format}
}

// Open implements Source.
func (s *RawFile) Open() error {
	return checkFile(s.fs, s.path)
}

// Read implements Source. A file shorter than the frame is
// ErrIncompleteRead; extra trailing bytes are ignored.
func (s *RawFile) Read(dst []byte) error {
	if len(dst) != s.format.Size() {
		return errors.Wrapf(ErrBufferSize, "buffer %d bytes, frame %d", len(dst), s.format.Size())
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open %s", s.path), ErrUnavailable)
	}
	defer f.Close()

	n, err := io.ReadFull(f, dst)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrIncompleteRead, "%s: read %d of %d bytes", s.path, n, len(dst))
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", s.path)
	}
	return nil
}

func checkFile(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrUnavailable, "%s does not exist", path)
		}
		return errors.Mark(errors.Wrapf(err, "stat %s", path), ErrUnavailable)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrUnavailable, "%s is a directory", path)
	}
	return nil
}
