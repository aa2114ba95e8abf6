package arena

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocAlignsAndTracksUsage(t *testing.T) {
	a := New(128)

	r1, err := a.Alloc(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r1.Offset)
	assert.Len(t, r1.Data, 10)
	assert.Equal(t, 10, cap(r1.Data))

	r2, err := a.Alloc(4, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, r2.Offset)
	assert.Equal(t, 20, a.Used())
	assert.False(t, r1.Overlaps(r2))
}

func TestAllocExhausted(t *testing.T) {
	a := New(32)

	_, err := a.Alloc(20, 0)
	require.NoError(t, err)

	_, err = a.Alloc(20, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 20, a.Used(), "failed alloc must not move the bump pointer")
}

func TestAllocRejectsBadAlignment(t *testing.T) {
	a := New(32)
	_, err := a.Alloc(4, 3)
	assert.Error(t, err)
	_, err = a.Alloc(-1, 4)
	assert.Error(t, err)
}

func TestResetReusesMemoryAndKeepsPeak(t *testing.T) {
	a := New(64)

	r1, err := a.Alloc(48, 0)
	require.NoError(t, err)
	r1.Data[0] = 0xAB

	a.Reset()
	assert.Equal(t, 0, a.Used())
	assert.Equal(t, 48, a.Peak())

	r2, err := a.Alloc(8, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), r2.Data[0])

	a.Zero()
	assert.Equal(t, byte(0), r2.Data[0])
}

func TestRegionOverlaps(t *testing.T) {
	a := Region{Offset: 0, Data: make([]byte, 8)}
	b := Region{Offset: 4, Data: make([]byte, 8)}
	c := Region{Offset: 8, Data: make([]byte, 8)}
	empty := Region{Offset: 2}

	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(c))
	assert.False(t, a.Overlaps(c))
	assert.False(t, a.Overlaps(empty))
}
