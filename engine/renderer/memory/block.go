package memory

import (
	"sort"

	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type span struct {
	offset, size uint64
}

// block is one device memory allocation that is carved into sub-allocations
// with a first-fit free list kept sorted by offset.
type block struct {
	memory    driver.DeviceMemory
	typeIndex uint32
	size      uint64
	free      []span
	used      int
	// mapped is the persistent host mapping of the whole block, if any.
	mapped []byte
}

func newBlock(mem driver.DeviceMemory, typeIndex uint32, size uint64) *block {
	return &block{
		memory:    mem,
		typeIndex: typeIndex,
		size:      size,
		free:      []span{{0, size}},
	}
}

// alloc reserves size bytes at an offset that is a multiple of align.
func (b *block) alloc(size, align uint64) (uint64, bool) {
	for i, s := range b.free {
		start := math.AlignUp(s.offset, align)
		end := start + size
		if end > s.offset+s.size {
			continue
		}
		var rest []span
		if start > s.offset {
			rest = append(rest, span{s.offset, start - s.offset})
		}
		if tail := s.offset + s.size - end; tail > 0 {
			rest = append(rest, span{end, tail})
		}
		b.free = append(b.free[:i], append(rest, b.free[i+1:]...)...)
		b.used++
		return start, true
	}
	return 0, false
}

// release returns [offset, offset+size) to the free list and merges it with
// its neighbours.
func (b *block) release(offset, size uint64) {
	i := sort.Search(len(b.free), func(i int) bool { return b.free[i].offset > offset })
	b.free = append(b.free, span{})
	copy(b.free[i+1:], b.free[i:])
	b.free[i] = span{offset, size}

	// merge with next
	if i+1 < len(b.free) && b.free[i].offset+b.free[i].size == b.free[i+1].offset {
		b.free[i].size += b.free[i+1].size
		b.free = append(b.free[:i+1], b.free[i+2:]...)
	}
	// merge with previous
	if i > 0 && b.free[i-1].offset+b.free[i-1].size == b.free[i].offset {
		b.free[i-1].size += b.free[i].size
		b.free = append(b.free[:i], b.free[i+1:]...)
	}
	b.used--
}

func (b *block) empty() bool {
	return b.used == 0
}

func (b *block) freeBytes() uint64 {
	var n uint64
	for _, s := range b.free {
		n += s.size
	}
	return n
}
