package buddyalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, total uintptr, opts ...Option) *Engine {
	t.Helper()
	buf := make([]byte, total)
	return New(0, buf, opts...)
}

// S4: basic split — init 1024 (max order 10), alloc(20) selects order 5,
// splitting down from order 10 and leaving one right-hand free block at
// each of orders 9,8,7,6,5.
func TestBuddyBasicSplit(t *testing.T) {
	e := newTestEngine(t, 1024)
	require.Equal(t, uint(10), e.MaxOrder())

	id, err := e.Alloc(20) // usable payload of order 5 is 32-12=20
	require.NoError(t, err)

	off, ok := e.findByID(id)
	require.True(t, ok)
	h := e.headerAt(off)
	assert.Equal(t, uint32(5), h.order)
	assert.Equal(t, uint32(20), h.requestedSize)

	// Free lists at 9,8,7,6 each hold exactly one block (the unsplit
	// right half of each split); order 5's list holds the right half at
	// offset 32 (the left half was consumed by the allocation), and order
	// 10 is empty.
	for order := uint(6); order <= 9; order++ {
		assert.NotEqual(t, noNext, e.freeHeads[order], "order %d should have a free block", order)
	}
	assert.Equal(t, uint32(32), e.freeHeads[5])
	assert.Equal(t, noNext, e.freeHeads[10])
}

func TestOrderForSizeAccountsForHeader(t *testing.T) {
	// Order 5 (32B) usable payload is 32-12=20 bytes; a 20-byte request
	// must fit order 5, a 21-byte request must not.
	assert.Equal(t, uint(5), orderForSize(20))
	assert.Equal(t, uint(6), orderForSize(21))
}

func TestBuddyAllocFreeRoundTrip(t *testing.T) {
	e := newTestEngine(t, 4096)

	id, err := e.Alloc(100)
	require.NoError(t, err)

	addr, ok := e.Resolve(id)
	require.True(t, ok)
	assert.Equal(t, headerSize, addr) // base is 0 in this test harness

	size, ok := e.RequestedSize(id)
	require.True(t, ok)
	assert.Equal(t, uintptr(100), size)

	require.NoError(t, e.Free(id))
	_, ok = e.Resolve(id)
	assert.False(t, ok)
	assert.ErrorIs(t, e.Free(id), ErrUnknownHandle)
}

func TestBuddyHandleMonotonicityAndUniqueness(t *testing.T) {
	e := newTestEngine(t, 4096)
	var last uint32
	seen := map[uint32]bool{}
	for i := 0; i < 8; i++ {
		id, err := e.Alloc(50)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		assert.False(t, seen[id])
		seen[id] = true
		last = id
	}
}

func TestBuddyExhaustion(t *testing.T) {
	e := newTestEngine(t, 64) // max order 6
	_, err := e.Alloc(64)     // nothing can satisfy: usable payload max is 2^6-12=52
	assert.ErrorIs(t, err, ErrInvalidSize)

	id, err := e.Alloc(52)
	require.NoError(t, err)
	_, err = e.Alloc(1)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	require.NoError(t, e.Free(id))
}

func TestBuddyNoMergeByDefault(t *testing.T) {
	e := newTestEngine(t, 1024)

	a, err := e.Alloc(20)
	require.NoError(t, err)
	b, err := e.Alloc(20)
	require.NoError(t, err)

	require.NoError(t, e.Free(a))
	require.NoError(t, e.Free(b))

	// Reference behavior: freeing two order-5 buddies leaves two
	// separate order-5 free blocks, not one order-6 block.
	count := 0
	cur := e.freeHeads[5]
	for cur != noNext {
		count++
		cur = e.readNext(cur)
	}
	assert.GreaterOrEqual(t, count, 2)
}

func TestBuddyCoalesceOnFreeOptIn(t *testing.T) {
	e := newTestEngine(t, 1024, CoalesceOnFree)

	a, err := e.Alloc(20)
	require.NoError(t, err)
	b, err := e.Alloc(20)
	require.NoError(t, err)

	require.NoError(t, e.Free(a))
	require.NoError(t, e.Free(b))

	// The two freed order-5 buddies merge back into progressively
	// larger free blocks all the way up, so order 5 ends up empty and
	// the top order holds the single merged block again.
	assert.Equal(t, noNext, e.freeHeads[5])
	assert.NotEqual(t, noNext, e.freeHeads[e.maxOrder])
}

func TestBuddyTilingInvariant(t *testing.T) {
	e := newTestEngine(t, 4096)
	_, err := e.Alloc(30)
	require.NoError(t, err)
	_, err = e.Alloc(1000)
	require.NoError(t, err)

	var total uintptr
	e.Walk(func(offset, size uintptr, free bool, requested uintptr, order uint) {
		total += size
	})
	assert.Equal(t, e.total, total)
}
