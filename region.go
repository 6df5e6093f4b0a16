package trampoline

import (
	"fmt"
	"unsafe"
)

// regionMagic identifies a live region header. Picked arbitrarily; any
// non-zero sentinel would do, it just needs to be implausible as garbage.
const regionMagic = 0x54524d50 // "TRMP" read as a big-endian uint32

// regionHeader is overlaid onto chunk index 0's storage: the spec's
// header-on-first-chunk trick, saving one chunk slot's worth of memory per
// region. It must fit inside sizeof(TrampolineChunk).
type regionHeader struct {
	signature            uint32
	numberOfUnusedChunks uint32
}

// Fails to compile (constant underflows uintptr) if regionHeader ever
// outgrows a chunk.
const _ uintptr = unsafe.Sizeof(TrampolineChunk{}) - unsafe.Sizeof(regionHeader{})

var chunkSize = int(unsafe.Sizeof(TrampolineChunk{}))

// trampolineRegion is a page-aligned, executable host allocation
// subdivided into chunksPerRegion fixed-size chunks. Chunk 0's storage is
// overlaid by the region header and never handed out as a usable chunk.
type trampolineRegion struct {
	base           uintptr
	buf            []byte
	chunksPerRegion int
	writable       bool
}

func newRegion(buf []byte, chunksPerRegion int) *trampolineRegion {
	r := &trampolineRegion{
		base:            uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
		buf:             buf,
		chunksPerRegion: chunksPerRegion,
		// allocateAt commits the region as EXECUTE_READWRITE; reflect
		// that here so the first protect() call actually flips it.
		writable: true,
	}
	r.header().signature = regionMagic
	r.header().numberOfUnusedChunks = uint32(chunksPerRegion - 1)
	return r
}

func (r *trampolineRegion) header() *regionHeader {
	return (*regionHeader)(unsafe.Pointer(&r.buf[0]))
}

// chunkAt returns the chunk at index i. i must be in [1, chunksPerRegion).
func (r *trampolineRegion) chunkAt(i int) *TrampolineChunk {
	offset := i * chunkSize
	return (*TrampolineChunk)(unsafe.Pointer(&r.buf[offset]))
}

// inRangeOfTarget reports whether this region's base lies within
// rangeOfRelativeJump of both lo and hi.
func (r *trampolineRegion) inRangeOfTarget(lo, hi uint64) bool {
	return inRange(uint64(r.base), lo, hi)
}

// findChunkInRange implements the per-region half of spec.md 4.4: if this
// region has any unused chunks and its own base is in range of both lo and
// hi, scan chunks 1..N-1 linearly for the first unused chunk whose base
// also satisfies the range condition against both lo and hi.
func (r *trampolineRegion) findChunkInRange(lo, hi uint64) (*TrampolineChunk, bool) {
	if r.header().numberOfUnusedChunks == 0 {
		return nil, false
	}
	if !r.inRangeOfTarget(lo, hi) {
		return nil, false
	}

	for i := 1; i < r.chunksPerRegion; i++ {
		chunk := r.chunkAt(i)
		if chunk.IsUsed() {
			continue
		}
		chunkAddr := uint64(r.base) + uint64(i*chunkSize)
		if inRange(chunkAddr, lo, hi) {
			return chunk, true
		}
	}
	return nil, false
}

// empty reports whether every chunk but the header slot is unused.
func (r *trampolineRegion) empty() bool {
	return r.header().numberOfUnusedChunks == uint32(r.chunksPerRegion-1)
}

// unprotect flips the region to EXECUTE_READWRITE; protect flips it back
// to EXECUTE_READ. Every chunk mutation is bracketed by this pair, mirroring
// the allocator BeginMutate/EndMutate bracket the teacher uses around its
// own arena mutations.
func (r *trampolineRegion) unprotect() error {
	if r.writable {
		return nil
	}
	if err := protectRegion(r.buf, true); err != nil {
		return err
	}
	r.writable = true
	return nil
}

func (r *trampolineRegion) protect() error {
	if !r.writable {
		return nil
	}
	if err := protectRegion(r.buf, false); err != nil {
		return err
	}
	r.writable = false
	return nil
}

func (r *trampolineRegion) release() error {
	if err := releaseRegion(r.buf); err != nil {
		return fmt.Errorf("release region at %#x: %w", r.base, err)
	}
	return nil
}
