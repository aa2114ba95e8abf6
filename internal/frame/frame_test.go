package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var small = Format{Side: 8, Channels: 3}

func TestRawFileReadsExactFrame(t *testing.T) {
	fs := afero.NewMemMapFs()
	want := make([]byte, small.Size())
	for i := range want {
		want[i] = byte(i)
	}
	require.NoError(t, afero.WriteFile(fs, "/image.jpg", append(want, 1, 2, 3), 0o644))

	src := NewRawFile(fs, "/image.jpg", small)
	require.NoError(t, src.Open())

	buf := small.NewBuffer()
	require.NoError(t, src.Read(buf))
	assert.Equal(t, want, buf)
}

func TestRawFileShortReadIsIncomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/image.jpg", make([]byte, small.Size()-10), 0o644))

	err := NewRawFile(fs, "/image.jpg", small).Read(small.NewBuffer())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteRead))
	assert.Contains(t, err.Error(), "read 182 of 192 bytes")
}

func TestRawFileEmptyIsIncomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/image.jpg", nil, 0o644))

	err := NewRawFile(fs, "/image.jpg", small).Read(small.NewBuffer())
	assert.True(t, errors.Is(err, ErrIncompleteRead))
}

func TestRawFileUnavailable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.Mkdir("/dir", 0o755))

	assert.True(t, errors.Is(NewRawFile(fs, "/missing", small).Open(), ErrUnavailable))
	assert.True(t, errors.Is(NewRawFile(fs, "/dir", small).Open(), ErrUnavailable))
	assert.True(t, errors.Is(NewRawFile(fs, "/missing", small).Read(small.NewBuffer()), ErrUnavailable))
}

func TestRawFileBufferMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	err := NewRawFile(fs, "/image.jpg", small).Read(make([]byte, 3))
	assert.True(t, errors.Is(err, ErrBufferSize))
}

func TestImageFileResizesToFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var enc bytes.Buffer
	require.NoError(t, png.Encode(&enc, img))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/image.png", enc.Bytes(), 0o644))

	src, err := NewImageFile(fs, "/image.png", small)
	require.NoError(t, err)
	require.NoError(t, src.Open())

	buf := small.NewBuffer()
	require.NoError(t, src.Read(buf))
	for i := 0; i < len(buf); i += 3 {
		assert.InDelta(t, 200, int(buf[i]), 2)
		assert.InDelta(t, 100, int(buf[i+1]), 2)
		assert.InDelta(t, 50, int(buf[i+2]), 2)
	}
}

func TestImageFileRejectsUndecodable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/image.png", []byte("not an image"), 0o644))

	src, err := NewImageFile(fs, "/image.png", small)
	require.NoError(t, err)
	assert.True(t, errors.Is(src.Read(small.NewBuffer()), ErrIncompleteRead))

	_, err = NewImageFile(fs, "/image.png", Format{Side: 8, Channels: 1})
	assert.Error(t, err)
}
