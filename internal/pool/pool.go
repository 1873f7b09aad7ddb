// Package pool owns the backing byte region allocations are served out of.
//
// The region is acquired from the host with a single anonymous mmap, the
// same mechanism the buddy prototype this package descends from used for
// its own backing store, and released with munmap on shutdown.
package pool

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrAlreadyInitialized is returned by Init when the pool already has a
// live backing region.
var ErrAlreadyInitialized = errors.New("pool: already initialized")

// ErrNotInitialized is returned by operations that require a live pool.
var ErrNotInitialized = errors.New("pool: not initialized")

// Pool owns a single fixed-size byte region acquired from the host.
// It has no notion of placement policy; engines hold a non-owning view
// over the bytes it exposes.
type Pool struct {
	base  uintptr
	bytes []byte
	total uintptr
}

// Init acquires a contiguous region of exactly n bytes from the host.
// It fails if the pool is already initialized or the host mmap fails.
func (p *Pool) Init(n uintptr) error {
	if p.base != 0 {
		return ErrAlreadyInitialized
	}
	if n == 0 {
		return errors.New("pool: size must be > 0")
	}

	data, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return err
	}

	p.bytes = data
	p.base = uintptr(unsafe.Pointer(&data[0]))
	p.total = n
	return nil
}

// Shutdown releases the backing region. It is idempotent: calling it on an
// uninitialized or already-shutdown pool is a no-op.
func (p *Pool) Shutdown() error {
	if p.base == 0 {
		return nil
	}
	err := unix.Munmap(p.bytes)
	p.base = 0
	p.bytes = nil
	p.total = 0
	return err
}

// Initialized reports whether the pool currently owns a backing region.
func (p *Pool) Initialized() bool { return p.base != 0 }

// Base returns the absolute start address of the pool's backing region.
func (p *Pool) Base() uintptr { return p.base }

// Total returns the pool's total byte capacity.
func (p *Pool) Total() uintptr { return p.total }

// Bytes returns the non-owning view engines build their bookkeeping over.
// Callers must not resize or reassign the returned slice.
func (p *Pool) Bytes() []byte { return p.bytes }
