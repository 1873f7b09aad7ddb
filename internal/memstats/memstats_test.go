package memstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersSuccessRate(t *testing.T) {
	var c Counters
	assert.Equal(t, float64(0), c.SuccessRate())

	c.RecordAllocAttempt()
	c.RecordAllocSuccess()
	c.RecordAllocAttempt()
	c.RecordAllocFailure()

	assert.Equal(t, float64(50), c.SuccessRate())
	assert.Equal(t, uint64(2), c.AllocRequests)
}

func TestListSnapshotUsesBlockSizeAsUsed(t *testing.T) {
	blocks := []struct {
		size uintptr
		free bool
	}{
		{100, false},
		{50, true},
		{200, false},
		{150, true},
	}

	s := ListSnapshot(500, func(fn func(uintptr, bool)) {
		for _, b := range blocks {
			fn(b.size, b.free)
		}
	})

	assert.Equal(t, uintptr(300), s.UsedMemory)
	assert.Equal(t, uintptr(200), s.FreeMemory)
	assert.Equal(t, uint64(2), s.UsedBlocks)
	assert.Equal(t, uint64(2), s.FreeBlocks)
	assert.Equal(t, uintptr(0), s.InternalFragmentation)
	assert.Equal(t, uintptr(150), s.LargestFree)
	assert.InDelta(t, 60.0, s.Utilization(), 0.001)
	assert.InDelta(t, 1-150.0/200.0, s.ExternalFragmentation(), 0.001)
	assert.InDelta(t, 1-150.0/200.0, ExternalFragmentation(200, 150), 0.001)
}

func TestBuddySnapshotUsesRequestedSizeAsUsedAndTracksFrag(t *testing.T) {
	type block struct {
		size, requested uintptr
		free            bool
	}
	blocks := []block{
		{size: 64, requested: 50, free: false},
		{size: 32, requested: 0, free: true},
		{size: 128, requested: 100, free: false},
	}

	s := BuddySnapshot(224, func(fn func(uintptr, bool, uintptr)) {
		for _, b := range blocks {
			fn(b.size, b.free, b.requested)
		}
	})

	assert.Equal(t, uintptr(150), s.UsedMemory) // requested, not size
	assert.Equal(t, uintptr(32), s.FreeMemory)
	assert.Equal(t, uintptr(32), s.LargestFree)
	assert.Equal(t, uintptr(14+28), s.InternalFragmentation) // (64-50)+(128-100)
}

func TestExternalFragmentationNoFree(t *testing.T) {
	assert.Equal(t, float64(0), ExternalFragmentation(0, 0))
}
