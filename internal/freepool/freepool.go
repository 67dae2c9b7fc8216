package freepool

import (
	"sort"

	"github.com/gostonefire/hashdb/internal/model"
	"github.com/gostonefire/hashdb/internal/utils"
)

// Pool - Size classed registry of reclaimed record region spans.
// Class i holds spans of size [quantum<<i, quantum<<(i+1)), the last class is unbounded.
// Spans are never merged, and when the pool is at capacity the smallest span is dropped
// and stays as permanent fragmentation in the file.
type Pool struct {
	alignPow int8
	capacity int
	minSplit int64
	classes  [][]model.FreeBlock
	count    int
	bytes    int64
}

// New - Returns a pointer to a new empty Pool
//   - alignPow is the alignment power of the file, all spans are multiples of 1<<alignPow
//   - freeBlockPow gives the capacity (1<<freeBlockPow spans) and the number of size classes (freeBlockPow+1)
//   - minSplit is the smallest surplus worth splitting off a span and returning to the pool
func New(alignPow, freeBlockPow int8, minSplit int64) *Pool {
	return &Pool{
		alignPow: alignPow,
		capacity: 1 << freeBlockPow,
		minSplit: minSplit,
		classes:  make([][]model.FreeBlock, int(freeBlockPow)+1),
	}
}

// Capacity - Returns the max number of spans the pool tracks
func (P *Pool) Capacity() int {
	return P.capacity
}

// Len - Returns the number of spans in the pool
func (P *Pool) Len() int {
	return P.count
}

// Bytes - Returns the total size of all spans in the pool
func (P *Pool) Bytes() int64 {
	return P.bytes
}

// Reset - Empties the pool
func (P *Pool) Reset() {
	for i := range P.classes {
		P.classes[i] = nil
	}
	P.count = 0
	P.bytes = 0
}

// Add - Registers a span for reuse.
// It returns:
//   - dropped is the span that fell out of the pool because it was full, only valid if ok is true
//   - ok tells whether a span was dropped
func (P *Pool) Add(block model.FreeBlock) (dropped model.FreeBlock, ok bool) {
	if block.Size <= 0 {
		return
	}

	if P.count >= P.capacity {
		smallest, c := P.smallest()
		if block.Size <= smallest.Size {
			dropped, ok = block, true
			return
		}
		P.removeAt(c, 0)
		dropped, ok = smallest, true
	}

	c := P.classOf(block.Size)
	blocks := P.classes[c]
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Size >= block.Size })
	blocks = append(blocks, model.FreeBlock{})
	copy(blocks[i+1:], blocks[i:])
	blocks[i] = block
	P.classes[c] = blocks
	P.count++
	P.bytes += block.Size

	return
}

// Take - Finds the best fitting span for size, removes it from the pool and splits off any usable surplus.
// It returns:
//   - block is the span to use, its Size may exceed the requested size when the surplus was too small to split
//   - remainder is the surplus put back in the pool (Size zero if none)
//   - ok is false if no span in the pool can hold size
func (P *Pool) Take(size int64) (block, remainder model.FreeBlock, ok bool) {
	for c := P.classOf(size); c < len(P.classes); c++ {
		blocks := P.classes[c]
		i := sort.Search(len(blocks), func(i int) bool { return blocks[i].Size >= size })
		if i == len(blocks) {
			continue
		}

		block = blocks[i]
		P.removeAt(c, i)
		ok = true
		break
	}
	if !ok {
		return
	}

	if block.Size-size >= P.minSplit {
		remainder = model.FreeBlock{Offset: block.Offset + size, Size: block.Size - size}
		block.Size = size
		_, _ = P.Add(remainder)
	}

	return
}

// Blocks - Returns all spans in the pool, smallest class first
func (P *Pool) Blocks() (blocks []model.FreeBlock) {
	blocks = make([]model.FreeBlock, 0, P.count)
	for _, c := range P.classes {
		blocks = append(blocks, c...)
	}

	return
}

// Load - Replaces the pool content with the given spans
func (P *Pool) Load(blocks []model.FreeBlock) {
	P.Reset()
	for _, b := range blocks {
		_, _ = P.Add(b)
	}
}

// classOf - Returns the size class for a span size
func (P *Pool) classOf(size int64) int {
	c := utils.Log2(size >> P.alignPow)
	if c >= len(P.classes) {
		c = len(P.classes) - 1
	}

	return c
}

// smallest - Returns the smallest span and its class, the pool must not be empty
func (P *Pool) smallest() (block model.FreeBlock, class int) {
	for c, blocks := range P.classes {
		if len(blocks) > 0 {
			return blocks[0], c
		}
	}

	return
}

func (P *Pool) removeAt(class, i int) {
	blocks := P.classes[class]
	P.bytes -= blocks[i].Size
	P.classes[class] = append(blocks[:i], blocks[i+1:]...)
	P.count--
}
