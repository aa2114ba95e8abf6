package frame

import (
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cockroachdb/errors"
	"github.com/nfnt/resize"
	"github.com/spf13/afero"
)

// ImageFile decodes a JPEG or PNG file and resizes it to the frame's side,
// packing it as interleaved RGB.
type ImageFile struct {
	fs     afero.Fs
	path   string
	format Format
}

// NewImageFile returns a decoding source. Only 3-channel formats are
// supported.
func NewImageFile(fs afero.Fs, path string, format Format) (*ImageFile, error) {
	if format.Channels != 3 {
		return nil, errors.Newf("frame: image source needs 3 channels, got %d", format.Channels)
	}
	return &ImageFile{fs: fs, path: path, format: format}, nil
}

// Open implements Source.
func (s *ImageFile) Open() error {
	return checkFile(s.fs, s.path)
}

// Read implements Source.
func (s *ImageFile) Read(dst []byte) error {
	if len(dst) != s.format.Size() {
		return errors.Wrapf(ErrBufferSize, "buffer %d bytes, frame %d", len(dst), s.format.Size())
	}
	f, err := s.fs.Open(s.path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open %s", s.path), ErrUnavailable)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "decode %s", s.path), ErrIncompleteRead)
	}

	side := s.format.Side
	resized := resize.Resize(uint(side), uint(side), img, resize.Lanczos3)
	b := resized.Bounds()

	idx := 0
	for y := b.Min.Y; y < b.Min.Y+side; y++ {
		for x := b.Min.X; x < b.Min.X+side; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			dst[idx] = uint8(r >> 8)
			dst[idx+1] = uint8(g >> 8)
			dst[idx+2] = uint8(bl >> 8)
			idx += 3
		}
	}
	return nil
}
