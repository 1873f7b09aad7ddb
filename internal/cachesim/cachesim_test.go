package cachesim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneSetLevel(policy Policy) LevelConfig {
	// 2-way associative, one set, 64B blocks: size = blockSize*assoc*numSets = 64*2*1 = 128.
	return LevelConfig{Name: "L1", Size: 128, BlockSize: 64, Associativity: 2, Policy: policy}
}

// S5: LRU vs FIFO eviction on access pattern A, B, A, C (block addresses
// chosen so they map to the same single set, one block width apart).
func TestEvictionLRUvsFIFO(t *testing.T) {
	lru := newLevel(oneSetLevel(LRU))
	a, b, c := uint64(0), uint64(64), uint64(128)

	assert.False(t, lru.access(a, false)) // miss
	assert.False(t, lru.access(b, false)) // miss
	assert.True(t, lru.access(a, false))  // hit, refreshes A's LRU time
	assert.False(t, lru.access(c, false)) // miss, evicts B (LRU)

	// B's tag should be gone; A and C should both be resident.
	setIdx, tagA := lru.decode(a)
	_, tagC := lru.decode(c)
	found := map[uint64]bool{}
	for _, line := range lru.sets[setIdx].lines {
		if line.Valid {
			found[line.Tag] = true
		}
	}
	assert.True(t, found[tagA])
	assert.True(t, found[tagC])

	fifo := newLevel(oneSetLevel(FIFO))
	assert.False(t, fifo.access(a, false))
	assert.False(t, fifo.access(b, false))
	assert.True(t, fifo.access(a, false))
	assert.False(t, fifo.access(c, false)) // FIFO evicts A (first inserted), not B

	setIdx, tagB := fifo.decode(b)
	found = map[uint64]bool{}
	for _, line := range fifo.sets[setIdx].lines {
		if line.Valid {
			found[line.Tag] = true
		}
	}
	assert.True(t, found[tagB])
	assert.True(t, found[tagC])
}

// S6: AMAT over one L1 hit and one total miss.
func TestAMAT(t *testing.T) {
	c := NewDefault()

	// First access: guaranteed miss across all levels (cold), costing
	// the full ladder.
	c.Access(0x10000, false)
	require.Equal(t, uint64(1), c.TotalRequests)
	assert.Equal(t, uint64(L1Latency+L2Latency+L3Latency+RAMLatency), c.TotalCycles)

	// Second access to the same address: hits in L1.
	c.Access(0x10000, false)
	assert.Equal(t, uint64(2), c.TotalRequests)
	assert.Equal(t, uint64(126+1), c.TotalCycles)
	assert.Equal(t, 63.5, c.AMAT())
}

func TestHitDoesNotBackInstallLowerLevels(t *testing.T) {
	c := NewDefault()
	addr := uint64(0x5000)

	c.Access(addr, false) // installs in L1, L2, L3 (miss path touches all)
	l1HitsBefore := c.L1.Hits

	c.Access(addr, false) // L1 hit
	assert.Equal(t, l1HitsBefore+1, c.L1.Hits)
	// L2/L3 were not probed on the L1 hit.
	assert.Equal(t, uint64(1), c.L2.Misses+c.L2.Hits)
	assert.Equal(t, uint64(1), c.L3.Misses+c.L3.Hits)
}

func TestHitAccountingSumsToAccesses(t *testing.T) {
	c := NewDefault()
	for i := uint64(0); i < 50; i++ {
		c.Access(i*64, i%2 == 0)
	}
	assert.Equal(t, uint64(50), c.L1.Hits+c.L1.Misses)
	assert.Equal(t, uint64(50), c.TotalRequests)
}

func TestDirtyBitSetOnWrite(t *testing.T) {
	lvl := newLevel(oneSetLevel(LRU))
	lvl.access(0, true)
	setIdx, tag := lvl.decode(0)
	var found *Line
	for i := range lvl.sets[setIdx].lines {
		if lvl.sets[setIdx].lines[i].Tag == tag && lvl.sets[setIdx].lines[i].Valid {
			found = &lvl.sets[setIdx].lines[i]
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.Dirty)
}
