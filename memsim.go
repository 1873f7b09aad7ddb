// Package memsim is the root facade: the engine dispatcher and Handle
// API of spec.md §6, implementing the "sum type {ListFirst, ListBest,
// ListWorst, Buddy}" redesign note from spec.md §9 in place of an
// integer algorithm flag, plus the malloc/free facade of
// original_source/my_malloc.c.
package memsim

import (
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/alewtschuk/memsim/internal/buddyalloc"
	"github.com/alewtschuk/memsim/internal/cachesim"
	"github.com/alewtschuk/memsim/internal/dump"
	"github.com/alewtschuk/memsim/internal/listalloc"
	"github.com/alewtschuk/memsim/internal/memstats"
	"github.com/alewtschuk/memsim/internal/pool"
)

// Algo is the placement policy sum type from spec.md §9: exactly one
// variant is active at a time, and its associated state is the
// corresponding engine.
type Algo int

const (
	ListFirst Algo = iota
	ListBest
	ListWorst
	Buddy
)

// String names the algo the way the command shell accepts/reports it.
func (a Algo) String() string {
	switch a {
	case ListFirst:
		return "first"
	case ListBest:
		return "best"
	case ListWorst:
		return "worst"
	case Buddy:
		return "buddy"
	default:
		return "unknown"
	}
}

// Error taxonomy, spec.md §7.
var (
	ErrAlreadyInitialized       = errors.New("memsim: already initialized")
	ErrNotInitialized           = errors.New("memsim: not initialized")
	ErrPoolExhausted            = errors.New("memsim: pool exhausted")
	ErrInvalidSize              = errors.New("memsim: invalid size")
	ErrUnknownHandle            = errors.New("memsim: unknown handle")
	ErrUnsupportedReverseLookup = errors.New("memsim: reverse lookup unsupported under buddy")
)

// engine is the dispatch contract every Algo variant's state satisfies.
type engine interface {
	Alloc(size uintptr) (uint32, error)
	Free(id uint32) error
	Resolve(id uint32) (uintptr, bool)
	RequestedSize(id uint32) (uintptr, bool)
}

// Simulator is the process-wide pool + active engine + stats + cache
// state spec.md §9 calls out as singleton; construct one explicitly
// rather than relying on package-level globals (the "re-architect as
// explicit context values" redesign note), and reuse it as a single
// instance at the call site that wants the convenience of a default.
type Simulator struct {
	pool     pool.Pool
	algo     Algo
	active   engine
	list     *listalloc.Engine  // non-nil only while a List* variant is active
	buddy    *buddyalloc.Engine // non-nil only while Buddy is active
	counters memstats.Counters
	cache    *cachesim.Controller
	log      zerolog.Logger
}

// New builds an uninitialized simulator with the given algo as its
// initial (pre-Init) selection and a structured logger for the
// facade/shell layer's own operational logging. Core engine packages
// stay logger-free per spec.md §7.
func New(algo Algo, log zerolog.Logger) *Simulator {
	return &Simulator{algo: algo, log: log}
}

// Init acquires a pool region of exactly n bytes and builds the active
// engine over it from scratch, per spec.md §4.1.
func (s *Simulator) Init(n uintptr) error {
	if s.pool.Initialized() {
		s.log.Error().Msg("init requested on already-initialized pool")
		return ErrAlreadyInitialized
	}
	if err := s.pool.Init(n); err != nil {
		s.log.Error().Err(err).Uint64("bytes", uint64(n)).Msg("host allocation failed")
		return err
	}

	s.counters = memstats.Counters{}
	s.cache = cachesim.NewDefault()
	s.rebuildEngine()

	s.log.Info().Uint64("bytes", uint64(n)).Str("algo", s.algo.String()).Msg("pool initialized")
	return nil
}

// Shutdown releases the pool and all engine/cache state. Idempotent and
// infallible per spec.md §7.
func (s *Simulator) Shutdown() {
	if !s.pool.Initialized() {
		return
	}
	_ = s.pool.Shutdown()
	s.active = nil
	s.list = nil
	s.buddy = nil
	s.cache = nil
	s.log.Info().Msg("pool shut down")
}

// SetAlgo switches the active placement policy. It is a no-op if algo
// is already active; otherwise it tears down the current engine's
// auxiliary state and rebuilds the new one over the same byte region
// from scratch, invalidating all live handles, per spec.md §4.1.
func (s *Simulator) SetAlgo(algo Algo) {
	if algo == s.algo {
		return
	}
	s.algo = algo
	if s.pool.Initialized() {
		s.rebuildEngine()
		s.log.Info().Str("algo", algo.String()).Msg("engine switched; live handles invalidated")
	}
}

// GetAlgo reports the active placement policy.
func (s *Simulator) GetAlgo() Algo { return s.algo }

func (s *Simulator) rebuildEngine() {
	s.list = nil
	s.buddy = nil
	switch s.algo {
	case ListFirst:
		s.list = listalloc.New(listalloc.FirstFit, s.pool.Total())
		s.active = s.list
	case ListBest:
		s.list = listalloc.New(listalloc.BestFit, s.pool.Total())
		s.active = s.list
	case ListWorst:
		s.list = listalloc.New(listalloc.WorstFit, s.pool.Total())
		s.active = s.list
	case Buddy:
		s.buddy = buddyalloc.New(s.pool.Base(), s.pool.Bytes())
		s.active = s.buddy
	}
}

// Alloc requests an allocation of n bytes under the active policy.
// Every attempt increments AllocRequests; success or failure is then
// recorded per spec.md §4.5/§7.
func (s *Simulator) Alloc(n uintptr) (uint32, error) {
	if !s.pool.Initialized() {
		return 0, ErrNotInitialized
	}
	s.counters.RecordAllocAttempt()

	id, err := s.active.Alloc(n)
	if err != nil {
		s.counters.RecordAllocFailure()
		s.log.Warn().Err(err).Uint64("bytes", uint64(n)).Msg("alloc failed")
		return 0, translateErr(err)
	}
	s.counters.RecordAllocSuccess()
	return id, nil
}

// Free releases the allocation matching id.
func (s *Simulator) Free(id uint32) error {
	if !s.pool.Initialized() {
		return ErrNotInitialized
	}
	if err := s.active.Free(id); err != nil {
		return translateErr(err)
	}
	s.counters.RecordFree()
	return nil
}

// Resolve returns the payload address for a live handle.
func (s *Simulator) Resolve(id uint32) (uintptr, bool) {
	if !s.pool.Initialized() || s.active == nil {
		return 0, false
	}
	addr, ok := s.active.Resolve(id)
	if ok && s.list != nil {
		// The list engine tracks pool-relative offsets.
		addr += s.pool.Base()
	}
	return addr, ok
}

// RequestedSize returns the originally requested byte count for a live
// handle, as opposed to the block/order size the active engine actually
// carved out for it.
func (s *Simulator) RequestedSize(id uint32) (uintptr, bool) {
	if !s.pool.Initialized() || s.active == nil {
		return 0, false
	}
	return s.active.RequestedSize(id)
}

// Malloc is the handle-API convenience wrapper: Malloc(n) =
// Resolve(Alloc(n)), per original_source/my_malloc.c's my_malloc.
func (s *Simulator) Malloc(n uintptr) (uintptr, bool) {
	id, err := s.Alloc(n)
	if err != nil {
		return 0, false
	}
	return s.Resolve(id)
}

// FreeByAddress performs the malloc facade's reverse lookup and frees
// the matching handle. It is a documented no-op (returns false, no
// error) under the buddy engine, matching my_malloc.c's ptr_to_id
// returning 0 for ALGO_BUDDY.
func (s *Simulator) FreeByAddress(addr uintptr) bool {
	if s.list == nil {
		return false
	}
	offset := addr - s.pool.Base()
	id, ok := s.list.ReverseLookup(offset)
	if !ok {
		return false
	}
	return s.Free(id) == nil
}

// ReverseLookup exposes the list engine's pointer-to-id capability
// directly; it returns ErrUnsupportedReverseLookup under the buddy
// engine, per spec.md §4.4/§7.
func (s *Simulator) ReverseLookup(addr uintptr) (uint32, error) {
	if s.list == nil {
		return 0, ErrUnsupportedReverseLookup
	}
	id, ok := s.list.ReverseLookup(addr - s.pool.Base())
	if !ok {
		return 0, ErrUnknownHandle
	}
	return id, nil
}

// Snapshot walks the active engine and returns its derived metrics per
// spec.md §4.5.
func (s *Simulator) Snapshot() memstats.Snapshot {
	total := s.pool.Total()
	if s.buddy != nil {
		snap := memstats.BuddySnapshot(total, func(fn func(uintptr, bool, uintptr)) {
			s.buddy.Walk(func(offset, size uintptr, free bool, requested uintptr, order uint) {
				fn(size, free, requested)
			})
		})
		// The buddy engine's header lives in-band, inside every used
		// block's own bytes, so it is real overhead distinct from
		// InternalFragmentation's size-vs-requested padding.
		snap.AllocatorOverhead = uintptr(snap.UsedBlocks) * buddyalloc.HeaderSize()
		return snap
	}
	if s.list != nil {
		return memstats.ListSnapshot(total, func(fn func(uintptr, bool)) {
			s.list.Walk(func(offset, size uintptr, free bool, requested uintptr) {
				fn(size, free)
			})
		})
	}
	return memstats.Snapshot{}
}

// Counters returns the allocation-lifecycle counters.
func (s *Simulator) Counters() memstats.Counters { return s.counters }

// Cache returns the cache controller for the active pool session. It is
// nil before Init and reset on every Init.
func (s *Simulator) Cache() *cachesim.Controller { return s.cache }

// Dump renders the current block map to w, per spec.md §6's format.
func (s *Simulator) Dump(w io.Writer) {
	base := s.pool.Base()
	var blocks []dump.Block

	if s.buddy != nil {
		s.buddy.Walk(func(offset, size uintptr, free bool, requested uintptr, order uint) {
			blocks = append(blocks, dump.Block{
				Start: offset, End: offset + size - 1, Free: free, Size: size,
				HasOrder: true, Order: order,
			})
		})
	} else if s.list != nil {
		s.list.Walk(func(offset, size uintptr, free bool, requested uintptr) {
			blocks = append(blocks, dump.Block{Start: offset, End: offset + size - 1, Free: free, Size: size})
		})
	}
	dump.Write(w, base, blocks)
}

func translateErr(err error) error {
	switch {
	case errors.Is(err, listalloc.ErrInvalidSize), errors.Is(err, buddyalloc.ErrInvalidSize):
		return ErrInvalidSize
	case errors.Is(err, listalloc.ErrPoolExhausted), errors.Is(err, buddyalloc.ErrPoolExhausted):
		return ErrPoolExhausted
	case errors.Is(err, listalloc.ErrUnknownHandle), errors.Is(err, buddyalloc.ErrUnknownHandle):
		return ErrUnknownHandle
	default:
		return err
	}
}
