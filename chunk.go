package trampoline

import (
	"encoding/binary"
	"unsafe"
)

// trapOpcode is INT3, used to pad unused trampoline bytes so that stray
// execution traps instead of running garbage.
const trapOpcode = 0xcc

func addrOf(p *byte) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func putUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

func putUint64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

func fillTrap(buf []byte) {
	for i := range buf {
		buf[i] = trapOpcode
	}
}

// IsUsed reports whether the chunk currently holds a live trampoline.
func (c *TrampolineChunk) IsUsed() bool {
	return c.isUsed
}

// Address returns the runtime address of the chunk's relocated code, i.e.
// the address a caller jumps to in order to run the trampoline and fall
// through to the original function.
func (c *TrampolineChunk) Address() uintptr {
	return c.codeBufferAddr()
}

// BackjumpAddress returns the address the trampoline returns control to:
// the first byte of the original function that was not relocated.
func (c *TrampolineChunk) BackjumpAddress() uintptr {
	return c.backjumpAddress
}

// OriginalCode returns a copy of the original bytes this chunk consumed.
func (c *TrampolineChunk) OriginalCode() []byte {
	out := make([]byte, c.originalCodeSize)
	copy(out, c.originalCode[:c.originalCodeSize])
	return out
}

// TranslationCount reports the number of translation items recorded.
func (c *TrampolineChunk) TranslationCount() int {
	return c.translationMap.count
}

// Translation returns the i'th (sourceOffset, destOffset) pair.
func (c *TrampolineChunk) Translation(i int) (sourceOffset, destOffset int) {
	item := c.translationMap.at(i)
	return int(item.sourceOffset), int(item.destOffset)
}

// free marks the chunk unused and trap-fills its code buffer. It does not
// touch the region's free-chunk count; callers update that themselves so a
// single mutation stays atomic from the caller's perspective.
func (c *TrampolineChunk) free() {
	c.reset()
	fillTrap(c.codeBuffer[:])
}
