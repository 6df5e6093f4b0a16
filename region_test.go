package trampoline

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// fakeRegionBuf allocates a plain Go byte slice sized for chunksPerRegion
// chunks, for tests that only exercise trampolineRegion's struct-level
// bookkeeping (header, chunkAt, findChunkInRange). It's never passed to
// protect()/unprotect() — those call the real host mprotect/VirtualProtect
// and require host-allocated, page-aligned memory (see trampoline_test.go
// for tests that exercise the real allocation path).
func fakeRegionBuf(chunksPerRegion int) []byte {
	return make([]byte, chunksPerRegion*chunkSize)
}

func TestNewRegion_HeaderInitialized(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)

	assert.Equal(t, uint32(regionMagic), r.header().signature)
	assert.Equal(t, uint32(chunksPerRegion-1), r.header().numberOfUnusedChunks)
	assert.True(t, r.empty())
}

func TestTrampolineRegion_ChunkAtDistinctAddresses(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)

	seen := map[uintptr]bool{}
	for i := 1; i < chunksPerRegion; i++ {
		addr := uintptr(unsafe.Pointer(r.chunkAt(i)))
		assert.False(t, seen[addr], "chunk %d address collided", i)
		seen[addr] = true
	}
}

func TestTrampolineRegion_FindChunkInRange(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)

	lo := uint64(r.base)
	hi := uint64(r.base)
	chunk, ok := r.findChunkInRange(lo, hi)
	assert.True(t, ok)
	assert.Same(t, r.chunkAt(1), chunk)

	// Out of range of the region's own base: no match even though chunks
	// are unused.
	_, ok = r.findChunkInRange(lo+2*rangeOfRelativeJump, hi+2*rangeOfRelativeJump)
	assert.False(t, ok)
}

func TestTrampolineRegion_FindChunkInRange_SkipsUsed(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)

	r.chunkAt(1).isUsed = true
	r.header().numberOfUnusedChunks = uint32(chunksPerRegion - 2)

	lo := uint64(r.base)
	hi := uint64(r.base)
	chunk, ok := r.findChunkInRange(lo, hi)
	assert.True(t, ok)
	assert.Same(t, r.chunkAt(2), chunk)
}

func TestTrampolineRegion_FindChunkInRange_NoneUnused(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)
	r.header().numberOfUnusedChunks = 0

	_, ok := r.findChunkInRange(uint64(r.base), uint64(r.base))
	assert.False(t, ok)
}

func TestTrampolineRegion_Empty(t *testing.T) {
	const chunksPerRegion = 4
	r := newRegion(fakeRegionBuf(chunksPerRegion), chunksPerRegion)
	assert.True(t, r.empty())

	r.header().numberOfUnusedChunks--
	assert.False(t, r.empty())
}
