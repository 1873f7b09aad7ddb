// Package buddyalloc implements the power-of-two buddy allocator: in-band
// headers, per-order free lists threaded through the free blocks
// themselves, and XOR buddy-address coalescing — the same structure as
// the teacher's mmap-backed BuddyPool, generalized to operate over any
// byte region handed to it by internal/pool and to use a handle-id
// header instead of the teacher's tag/kval-only Avail node.
package buddyalloc

import (
	"errors"
	"unsafe"
)

const (
	// MinOrder is the smallest block order: 2^5 = 32 bytes.
	MinOrder = 5
	// MaxOrder is the largest block order this engine will ever use: 2^22 = 4MiB.
	MaxOrder = 22

	noNext = ^uint32(0)
)

// ErrInvalidSize is returned by Alloc for a zero-byte request or one too
// large for any order this engine manages.
var ErrInvalidSize = errors.New("buddyalloc: invalid size")

// ErrPoolExhausted is returned by Alloc when no free block of a
// sufficient order is available.
var ErrPoolExhausted = errors.New("buddyalloc: pool exhausted")

// ErrUnknownHandle is returned by Free when no live block matches.
var ErrUnknownHandle = errors.New("buddyalloc: unknown handle")

// header is the in-band record at the start of every block, both free and
// allocated. id == 0 means free. Block size is exactly 2^order bytes
// including the header.
type header struct {
	id            uint32
	order         uint32
	requestedSize uint32
}

var headerSize = uintptr(unsafe.Sizeof(header{}))

// Engine is a power-of-two buddy allocator over a byte region owned by
// internal/pool. Free blocks thread a per-order singly linked free list
// through the header-sized offset field that immediately follows their
// header — a tagged view over the same bytes, never pointer-punned with
// the header itself.
type Engine struct {
	base      uintptr
	bytes     []byte
	total     uintptr
	maxOrder  uint
	freeHeads []uint32 // relative offset of the free-list head for each order, noNext if empty
	nextID    uint32
	coalesce  bool
}

// Option configures non-default engine behavior.
type Option func(*Engine)

// CoalesceOnFree enables the supplemental opt-in merge-on-free mode
// (SPEC_FULL.md §7.1): freeing a block attempts to merge it with its
// buddy, repeatedly, whenever the buddy is free and of equal order. The
// reference behavior (and the default here) never merges on free.
func CoalesceOnFree(e *Engine) { e.coalesce = true }

// New builds an engine over bytes rooted at base, with a single free block
// at offset 0 of the largest order that fits. The engine tiles only the
// first 2^maxOrder bytes; any bytes past that are not part of any block.
func New(base uintptr, bytes []byte, opts ...Option) *Engine {
	total := uintptr(len(bytes))
	maxOrder := uint(MinOrder)
	for maxOrder < MaxOrder && (uintptr(1)<<(maxOrder+1)) <= total {
		maxOrder++
	}

	e := &Engine{
		base:      base,
		bytes:     bytes,
		total:     uintptr(1) << maxOrder,
		maxOrder:  maxOrder,
		freeHeads: make([]uint32, maxOrder+1),
		nextID:    1,
	}
	for i := range e.freeHeads {
		e.freeHeads[i] = noNext
	}

	e.writeHeader(0, header{id: 0, order: uint32(maxOrder), requestedSize: 0})
	e.writeNext(0, noNext)
	e.freeHeads[maxOrder] = 0

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxOrder reports the largest order this engine manages, derived from
// the pool's total size.
func (e *Engine) MaxOrder() uint { return e.maxOrder }

func (e *Engine) headerAt(off uint32) *header {
	return (*header)(unsafe.Pointer(&e.bytes[off]))
}

func (e *Engine) writeHeader(off uint32, h header) {
	*e.headerAt(off) = h
}

// writeNext stores the free-list link for the block at off in the bytes
// immediately following its header — valid only while the block is free.
func (e *Engine) writeNext(off uint32, next uint32) {
	*(*uint32)(unsafe.Pointer(&e.bytes[uintptr(off)+headerSize])) = next
}

func (e *Engine) readNext(off uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(&e.bytes[uintptr(off)+headerSize]))
}

func (e *Engine) popBlock(order uint) (uint32, bool) {
	head := e.freeHeads[order]
	if head == noNext {
		return 0, false
	}
	e.freeHeads[order] = e.readNext(head)
	return head, true
}

func (e *Engine) pushBlock(order uint, off uint32) {
	e.writeNext(off, e.freeHeads[order])
	e.freeHeads[order] = off
}

// orderForSize returns the smallest order whose usable payload
// (2^order - header size) covers n, per SPEC_FULL.md §7's resolution of
// Open Question 2.
func orderForSize(n uintptr) uint {
	order := uint(MinOrder)
	for (uintptr(1)<<order)-headerSize < n {
		order++
	}
	return order
}

// Alloc selects (splitting as needed) a block whose usable payload covers
// size bytes and returns a fresh handle id for it.
func (e *Engine) Alloc(size uintptr) (uint32, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	want := orderForSize(size)
	if want > e.maxOrder {
		return 0, ErrInvalidSize
	}

	i := want
	for i <= e.maxOrder && e.freeHeads[i] == noNext {
		i++
	}
	if i > e.maxOrder {
		return 0, ErrPoolExhausted
	}

	for i > want {
		off, _ := e.popBlock(i)
		half := uintptr(1) << (i - 1)
		left := off
		right := off + uint32(half)

		e.writeHeader(left, header{id: 0, order: uint32(i - 1)})
		e.writeHeader(right, header{id: 0, order: uint32(i - 1)})
		// Right first, then left, so left is popped next: splits bias
		// placement toward the lower address.
		e.pushBlock(i-1, right)
		e.pushBlock(i-1, left)
		i--
	}

	off, ok := e.popBlock(want)
	if !ok {
		return 0, ErrPoolExhausted
	}

	id := e.nextID
	e.nextID++
	e.writeHeader(off, header{id: id, order: uint32(want), requestedSize: uint32(size)})
	return id, nil
}

// buddyOf returns the offset of the buddy of the block at off with the
// given order, via XOR address arithmetic relative to base.
func buddyOf(off uint32, order uint) uint32 {
	return off ^ uint32(uintptr(1)<<order)
}

// Free returns the block matching id to its order's free list by tile
// walk. If the engine was built with CoalesceOnFree, it then repeatedly
// merges with a free, equal-order buddy.
func (e *Engine) Free(id uint32) error {
	if id == 0 {
		return ErrUnknownHandle
	}
	off, ok := e.findByID(id)
	if !ok {
		return ErrUnknownHandle
	}

	h := e.headerAt(off)
	order := uint(h.order)
	h.id = 0
	h.requestedSize = 0

	if !e.coalesce {
		e.pushBlock(order, off)
		return nil
	}

	for order < e.maxOrder {
		buddy := buddyOf(off, order)
		bh := e.headerAt(buddy)
		if bh.id != 0 || uint(bh.order) != order {
			break
		}
		e.removeFromFreeList(order, buddy)

		lower := off
		if buddy < lower {
			lower = buddy
		}
		order++
		e.writeHeader(lower, header{id: 0, order: uint32(order)})
		off = lower
	}
	e.pushBlock(order, off)
	return nil
}

// removeFromFreeList unlinks off from the free list of order, wherever it
// sits in the list.
func (e *Engine) removeFromFreeList(order uint, off uint32) {
	cur := e.freeHeads[order]
	if cur == off {
		e.freeHeads[order] = e.readNext(off)
		return
	}
	for cur != noNext {
		next := e.readNext(cur)
		if next == off {
			e.writeNext(cur, e.readNext(off))
			return
		}
		cur = next
	}
}

// findByID walks the pool in header-directed strides of 2^order looking
// for a header with the matching id.
func (e *Engine) findByID(id uint32) (uint32, bool) {
	var cur uint32
	for uintptr(cur) < e.total {
		h := e.headerAt(cur)
		size := uint32(uintptr(1) << h.order)
		if h.id == id {
			return cur, true
		}
		cur += size
	}
	return 0, false
}

// Resolve returns the payload address for id: the block's offset plus
// the header size.
func (e *Engine) Resolve(id uint32) (uintptr, bool) {
	if id == 0 {
		return 0, false
	}
	off, ok := e.findByID(id)
	if !ok {
		return 0, false
	}
	return e.base + uintptr(off) + headerSize, true
}

// RequestedSize returns the originally requested byte count for id.
func (e *Engine) RequestedSize(id uint32) (uintptr, bool) {
	off, ok := e.findByID(id)
	if !ok {
		return 0, false
	}
	return uintptr(e.headerAt(off).requestedSize), true
}

// Walk visits every block in address order, in the shape internal/memstats
// and internal/dump consume. order is the block's order, useful to dump's
// extra per-block detail.
func (e *Engine) Walk(fn func(offset, size uintptr, free bool, requested uintptr, order uint)) {
	var cur uint32
	for uintptr(cur) < e.total {
		h := e.headerAt(cur)
		size := uintptr(1) << h.order
		fn(uintptr(cur), size, h.id == 0, uintptr(h.requestedSize), uint(h.order))
		cur += uint32(size)
	}
}

// Total returns the total byte capacity the engine tiles.
func (e *Engine) Total() uintptr { return e.total }

// HeaderSize returns the in-band header footprint carved out of every
// block, exposed so callers can compute usable payload bounds.
func HeaderSize() uintptr { return headerSize }
