package trampoline

import (
	"fmt"
	"sync"
	"unsafe"
)

// Trampoline is a handle to a live relocated-prologue chunk. The zero
// value is not usable; obtain one from Create or CreateEx.
type Trampoline struct {
	region *trampolineRegion
	chunk  *TrampolineChunk
}

// Address is the address to jump to in order to run the trampoline: the
// relocated prologue, followed by a jump back into the original function.
func (t *Trampoline) Address() uintptr { return t.chunk.Address() }

// BackjumpAddress is the address control returns to after the relocated
// prologue runs: the original function's first un-relocated byte.
func (t *Trampoline) BackjumpAddress() uintptr { return t.chunk.BackjumpAddress() }

// OriginalCode returns a copy of the original bytes this trampoline
// consumed from the target function.
func (t *Trampoline) OriginalCode() []byte { return t.chunk.OriginalCode() }

// TranslationCount reports the number of (source, dest) offset pairs
// recorded for this trampoline's relocated instructions.
func (t *Trampoline) TranslationCount() int { return t.chunk.TranslationCount() }

// Translation returns the i'th (sourceOffset, destOffset) pair: the
// instruction at byte sourceOffset of the original now lives at byte
// destOffset of Address()'s code.
func (t *Trampoline) Translation(i int) (sourceOffset, destOffset int) {
	return t.chunk.Translation(i)
}

// engineState is the single process-wide structure tracking allocated
// regions, mirroring Trampoline.c's g_trampoline_data. Lazily initialized
// on the first Create/CreateEx, torn down on the Free that empties the
// directory. mu serializes every operation; the caller-side "transaction"
// layer spec.md §5 assumes is folded into this package rather than left
// external, since this package has no narrower notion of a caller.
type engineState struct {
	mu              sync.Mutex
	initialized     bool
	chunksPerRegion int
	directory       *regionDirectory
}

var engine engineState

func (e *engineState) ensureInit() {
	if e.initialized {
		return
	}
	e.chunksPerRegion = allocationGranularity() / chunkSize
	e.directory = newRegionDirectory()
	e.initialized = true
}

// Create builds a trampoline for target that calls back into callback,
// relocating at least minBytesToReloc bytes of target's prologue, with
// every rewrite class enabled.
func Create(target, callback uintptr, minBytesToReloc int) (*Trampoline, error) {
	return CreateEx(target, callback, minBytesToReloc, DefaultRewriteFlags)
}

// CreateEx is Create with an explicit RewriteFlags mask: instruction
// classes not enabled by flags fail with ErrRewriteDisabled rather than
// being guessed at.
func CreateEx(target, callback uintptr, minBytesToReloc int, flags RewriteFlags) (*Trampoline, error) {
	if target == 0 || callback == 0 || minBytesToReloc < 1 {
		return nil, fmt.Errorf("%w: target and callback must be non-zero, min_bytes_to_reloc must be >= 1",
			ErrInvalidArgument)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.ensureInit()

	sourceSize, err := probeReadable(target, maxCodeSize)
	if err != nil {
		return nil, err
	}
	if sourceSize < minBytesToReloc {
		return nil, fmt.Errorf("%w: only %d readable bytes, need %d", ErrInvalidOperation, sourceSize, minBytesToReloc)
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(target)), sourceSize)

	lo, hi, err := combinedRange(src, uint64(target), minBytesToReloc)
	if err != nil {
		return nil, err
	}

	region, chunk, found := engine.directory.findChunk(lo, hi)
	isNewRegion := false
	if found {
		if err := region.unprotect(); err != nil {
			return nil, err
		}
	} else {
		region, err = allocateRegion(lo, hi, engine.chunksPerRegion)
		if err != nil {
			return nil, err
		}
		isNewRegion = true

		var ok bool
		chunk, ok = region.findChunkInRange(lo, hi)
		if !ok {
			region.release()
			return nil, fmt.Errorf("%w: freshly allocated region had no chunk in range", ErrOutOfRange)
		}
	}

	if err := initChunk(chunk, src, target, callback, minBytesToReloc, flags); err != nil {
		if isNewRegion {
			region.release()
		} else {
			region.protect()
		}
		return nil, err
	}

	region.header().numberOfUnusedChunks--
	if err := region.protect(); err != nil {
		return nil, err
	}
	if isNewRegion {
		engine.directory.insert(region)
	}

	return &Trampoline{region: region, chunk: chunk}, nil
}

// Free releases t: the owning chunk is marked unused and trap-filled, and
// the region's free-chunk count is incremented. If the region's unused
// count returns to chunksPerRegion-1 (every chunk but the header slot is
// free), the region is removed from the directory and its memory
// released. If that empties the directory, the engine's lazy state is
// torn down so a later Create starts fresh.
func Free(t *Trampoline) error {
	if t == nil {
		return fmt.Errorf("%w: nil trampoline", ErrInvalidArgument)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.initialized {
		return fmt.Errorf("%w: engine not initialized", ErrInvalidOperation)
	}

	region := t.region
	if err := region.unprotect(); err != nil {
		return err
	}
	t.chunk.free()
	region.header().numberOfUnusedChunks++
	if err := region.protect(); err != nil {
		return err
	}

	if !region.empty() {
		return nil
	}

	engine.directory.remove(region)
	if err := region.release(); err != nil {
		return err
	}
	if engine.directory.size() == 0 {
		engine.initialized = false
		engine.directory = nil
	}
	return nil
}
