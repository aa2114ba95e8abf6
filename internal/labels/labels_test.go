package labels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveKnown(t *testing.T) {
	table := NewTable(Default)

	l := table.Resolve(2)
	assert.True(t, l.Known)
	assert.Equal(t, "car", l.Name)
	assert.Equal(t, "car", l.String())
}

func TestResolveOutOfRange(t *testing.T) {
	table := NewTable(Default)

	for _, id := range []int{-1, 3, 999, math.MinInt, math.MaxInt} {
		l := table.Resolve(id)
		assert.False(t, l.Known, "id %d", id)
		assert.Equal(t, id, l.ID)
		assert.Empty(t, l.Name)
	}
	assert.Equal(t, "unknown class ID 999", table.Resolve(999).String())
}

func TestTableIsCopied(t *testing.T) {
	names := []string{"a", "b"}
	table := NewTable(names)
	names[0] = "z"

	assert.Equal(t, "a", table.Resolve(0).Name)
	assert.Equal(t, 2, table.Len())
}

func TestEmptyTable(t *testing.T) {
	assert.False(t, NewTable(nil).Resolve(0).Known)
}
