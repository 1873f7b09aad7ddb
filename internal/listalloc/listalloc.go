// Package listalloc implements the contiguous, offset-sorted block-list
// placement engine shared by the first-fit, best-fit and worst-fit
// policies, plus coalescing on free and pointer-to-handle reverse lookup.
//
// Descriptors are out-of-band and arena-indexed (a plain slice, no pointer
// chasing between entries) in the spirit of the teacher's `avail [MAX_K]`
// array of free-list headers.
package listalloc

import (
	"errors"
)

// ErrInvalidSize is returned by Alloc for a zero-byte request.
var ErrInvalidSize = errors.New("listalloc: invalid size")

// ErrPoolExhausted is returned by Alloc when no free descriptor is large
// enough to satisfy the request.
var ErrPoolExhausted = errors.New("listalloc: pool exhausted")

// ErrUnknownHandle is returned by Free when no live descriptor matches.
var ErrUnknownHandle = errors.New("listalloc: unknown handle")

// Policy selects how a free descriptor is chosen among all matches.
type Policy int

const (
	FirstFit Policy = iota
	BestFit
	WorstFit
)

// Descriptor is the out-of-band bookkeeping record for one contiguous
// region of the pool.
type Descriptor struct {
	Offset        uintptr
	Size          uintptr
	RequestedSize uintptr
	Free          bool
	ID            uint32
}

// Engine is the sorted, gap-free descriptor list for one pool region under
// a single placement policy.
type Engine struct {
	policy  Policy
	total   uintptr
	blocks  []Descriptor
	nextID  uint32
}

// New builds an engine covering [0, total) as a single free descriptor.
func New(policy Policy, total uintptr) *Engine {
	return &Engine{
		policy: policy,
		total:  total,
		blocks: []Descriptor{{Offset: 0, Size: total, Free: true}},
		nextID: 1,
	}
}

// Policy reports the engine's active placement policy.
func (e *Engine) Policy() Policy { return e.policy }

// find returns the index of the descriptor the configured policy would
// place a request of the given size into, or -1 if none fits.
func (e *Engine) find(size uintptr) int {
	best := -1
	for i := range e.blocks {
		b := &e.blocks[i]
		if !b.Free || b.Size < size {
			continue
		}
		switch e.policy {
		case FirstFit:
			return i
		case BestFit:
			if best == -1 || b.Size < e.blocks[best].Size {
				best = i
			}
		case WorstFit:
			if best == -1 || b.Size > e.blocks[best].Size {
				best = i
			}
		}
	}
	return best
}

// Alloc places a request of size bytes using the engine's policy,
// splitting the chosen descriptor if it is larger than needed.
func (e *Engine) Alloc(size uintptr) (uint32, error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	idx := e.find(size)
	if idx < 0 {
		return 0, ErrPoolExhausted
	}

	b := &e.blocks[idx]
	if b.Size > size {
		rest := Descriptor{
			Offset: b.Offset + size,
			Size:   b.Size - size,
			Free:   true,
		}
		e.blocks = append(e.blocks, Descriptor{})
		copy(e.blocks[idx+2:], e.blocks[idx+1:])
		e.blocks[idx+1] = rest
		b = &e.blocks[idx]
		b.Size = size
	}

	id := e.nextID
	e.nextID++
	b.Free = false
	b.ID = id
	b.RequestedSize = size
	return id, nil
}

// Free returns the descriptor matching id to the free list and coalesces
// it with an adjacent free neighbor on each side, at most once per side.
func (e *Engine) Free(id uint32) error {
	for i := range e.blocks {
		if e.blocks[i].Free || e.blocks[i].ID != id {
			continue
		}

		e.blocks[i].Free = true
		e.blocks[i].ID = 0
		e.blocks[i].RequestedSize = 0

		if i+1 < len(e.blocks) && e.blocks[i+1].Free {
			e.blocks[i].Size += e.blocks[i+1].Size
			e.blocks = append(e.blocks[:i+1], e.blocks[i+2:]...)
		}
		if i > 0 && e.blocks[i-1].Free {
			e.blocks[i-1].Size += e.blocks[i].Size
			e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
		}
		return nil
	}
	return ErrUnknownHandle
}

// Resolve returns the offset of the live allocation matching id.
func (e *Engine) Resolve(id uint32) (uintptr, bool) {
	if id == 0 {
		return 0, false
	}
	for i := range e.blocks {
		if !e.blocks[i].Free && e.blocks[i].ID == id {
			return e.blocks[i].Offset, true
		}
	}
	return 0, false
}

// RequestedSize returns the originally requested byte count for id.
func (e *Engine) RequestedSize(id uint32) (uintptr, bool) {
	for i := range e.blocks {
		if !e.blocks[i].Free && e.blocks[i].ID == id {
			return e.blocks[i].RequestedSize, true
		}
	}
	return 0, false
}

// ReverseLookup finds the live handle whose payload starts at offset, the
// capability the buddy engine does not support.
func (e *Engine) ReverseLookup(offset uintptr) (uint32, bool) {
	for i := range e.blocks {
		if !e.blocks[i].Free && e.blocks[i].Offset == offset {
			return e.blocks[i].ID, true
		}
	}
	return 0, false
}

// Walk visits every descriptor in offset order, in the shape
// internal/memstats and internal/dump consume.
func (e *Engine) Walk(fn func(offset, size uintptr, free bool, requested uintptr)) {
	for _, b := range e.blocks {
		fn(b.Offset, b.Size, b.Free, b.RequestedSize)
	}
}

// Total returns the total byte capacity the engine tiles.
func (e *Engine) Total() uintptr { return e.total }
