// Package arena provides the fixed-capacity scratch region that backs every
// tensor the inference engine works with.
//
// An Arena is allocated once and never grows. Regions are handed out with a
// bump pointer and are only reclaimed all at once by Reset.
package arena

import (
	"github.com/cockroachdb/errors"
)

// DefaultAlign is the alignment used for tensor regions. It covers every
// element type the engine exchanges (uint8, float32).
const DefaultAlign = 16

// ErrExhausted is returned when a region does not fit in the remaining space.
var ErrExhausted = errors.New("arena: capacity exhausted")

// Region is a sub-slice of the arena together with its offset.
type Region struct {
	Offset int
	Data   []byte
}

// End returns the offset one past the last byte of the region.
func (r Region) End() int { return r.Offset + len(r.Data) }

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	if len(r.Data) == 0 || len(o.Data) == 0 {
		return false
	}
	return r.Offset < o.End() && o.Offset < r.End()
}

// Arena is a bump allocator over a single byte slice.
type Arena struct {
	buf  []byte
	used int
	peak int
}

// New allocates an arena of exactly capacity bytes.
func New(capacity int) *Arena {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Capacity returns the fixed size of the arena.
func (a *Arena) Capacity() int { return len(a.buf) }

// Used returns the number of bytes handed out since the last Reset,
// including alignment padding.
func (a *Arena) Used() int { return a.used }

// Peak returns the high-water mark across all Resets.
func (a *Arena) Peak() int { return a.peak }

// Alloc carves size bytes aligned to align (a power of two; 0 means
// DefaultAlign). The region's capacity is clipped so appends cannot spill
// into a neighbouring region.
func (a *Arena) Alloc(size, align int) (Region, error) {
	if size < 0 {
		return Region{}, errors.Newf("arena: negative size %d", size)
	}
	if align <= 0 {
		align = DefaultAlign
	}
	if align&(align-1) != 0 {
		return Region{}, errors.Newf("arena: alignment %d is not a power of two", align)
	}

	off := (a.used + align - 1) &^ (align - 1)
	if off > len(a.buf) || size > len(a.buf)-off {
		return Region{}, errors.Wrapf(ErrExhausted,
			"requested %d bytes at offset %d, capacity %d", size, off, len(a.buf))
	}

	a.used = off + size
	if a.used > a.peak {
		a.peak = a.used
	}
	return Region{Offset: off, Data: a.buf[off : off+size : off+size]}, nil
}

// Reset releases every region. Previously returned slices stay valid memory
// but will be handed out again by later Allocs.
func (a *Arena) Reset() { a.used = 0 }

// Zero clears the whole backing buffer.
func (a *Arena) Zero() { clear(a.buf) }
