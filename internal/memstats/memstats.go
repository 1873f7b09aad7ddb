// Package memstats tracks allocation counters and derives fragmentation
// and utilization metrics on demand by walking the active engine,
// grounded on original_source/stats/stats.c — collapsed here into two
// small walker-driven constructors instead of stats.c's separate
// buddy/out-of-band branches.
package memstats

// Counters tracks the four allocation-lifecycle counters from spec.md
// §4.5, updated synchronously at every engine entry/exit.
type Counters struct {
	AllocRequests uint64
	AllocSuccess  uint64
	AllocFailure  uint64
	FreeCount     uint64
}

// RecordAllocAttempt increments AllocRequests. Call once per Alloc call,
// before dispatching into the engine.
func (c *Counters) RecordAllocAttempt() { c.AllocRequests++ }

// RecordAllocSuccess increments AllocSuccess.
func (c *Counters) RecordAllocSuccess() { c.AllocSuccess++ }

// RecordAllocFailure increments AllocFailure.
func (c *Counters) RecordAllocFailure() { c.AllocFailure++ }

// RecordFree increments FreeCount. Call only on a successful free.
func (c *Counters) RecordFree() { c.FreeCount++ }

// SuccessRate returns 100*AllocSuccess/AllocRequests, or 0 if there have
// been no requests.
func (c *Counters) SuccessRate() float64 {
	if c.AllocRequests == 0 {
		return 0
	}
	return 100 * float64(c.AllocSuccess) / float64(c.AllocRequests)
}

// Snapshot is the set of derived metrics computed by walking the active
// engine once.
type Snapshot struct {
	TotalMemory           uintptr
	UsedMemory            uintptr
	FreeMemory            uintptr
	UsedBlocks            uint64
	FreeBlocks            uint64
	LargestFree           uintptr // largest single free block/descriptor
	InternalFragmentation uintptr // buddy only; always 0 for the list engine
	// AllocatorOverhead is bytes of allocator metadata, carried over from
	// original_source/stats.h's stats_set_allocator_overhead. It is
	// always 0 for the list engine, whose descriptors live outside the
	// pool; for the buddy engine the facade sets it to the in-band header
	// bytes of the used blocks.
	AllocatorOverhead uintptr
}

// Utilization returns 100*used/total, using block size for the list
// engine's "used" and requested size for the buddy engine's, per
// spec.md §4.5's deliberate asymmetry.
func (s Snapshot) Utilization() float64 {
	if s.TotalMemory == 0 {
		return 0
	}
	return 100 * float64(s.UsedMemory) / float64(s.TotalMemory)
}

// ExternalFragmentation returns 1 - LargestFree/FreeMemory, or 0 if there
// is no free memory, per spec.md §4.5's required derived metric.
func (s Snapshot) ExternalFragmentation() float64 {
	return ExternalFragmentation(s.FreeMemory, s.LargestFree)
}

// ExternalFragmentation returns 1 - largestFree/totalFree, or 0 if there
// is no free memory.
func ExternalFragmentation(totalFree, largestFree uintptr) float64 {
	if totalFree == 0 {
		return 0
	}
	return 1 - float64(largestFree)/float64(totalFree)
}

// ListSnapshot walks a list-engine-shaped view (block size counts as
// used) and returns its derived metrics.
func ListSnapshot(total uintptr, walk func(fn func(size uintptr, free bool))) Snapshot {
	var s Snapshot
	s.TotalMemory = total
	var largestFree uintptr

	walk(func(size uintptr, free bool) {
		if free {
			s.FreeBlocks++
			s.FreeMemory += size
			if size > largestFree {
				largestFree = size
			}
		} else {
			s.UsedBlocks++
			s.UsedMemory += size
		}
	})
	s.LargestFree = largestFree
	return s
}

// BuddySnapshot walks a buddy-engine-shaped view (requested size counts
// as used, size-requested counts toward internal fragmentation) and
// returns its derived metrics.
func BuddySnapshot(total uintptr, walk func(fn func(size uintptr, free bool, requested uintptr))) Snapshot {
	var s Snapshot
	s.TotalMemory = total
	var largestFree uintptr

	walk(func(size uintptr, free bool, requested uintptr) {
		if free {
			s.FreeBlocks++
			s.FreeMemory += size
			if size > largestFree {
				largestFree = size
			}
		} else {
			s.UsedBlocks++
			s.UsedMemory += requested
			if requested < size {
				s.InternalFragmentation += size - requested
			}
		}
	})
	s.LargestFree = largestFree
	return s
}
