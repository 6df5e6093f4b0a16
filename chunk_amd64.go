//go:build amd64

package trampoline

import "unsafe"

// TrampolineChunk is a fixed-size slot holding one relocated prologue. On
// amd64 it additionally carries an indirect call-through slot: a stable
// address an outer hook-chaining layer (out of scope here) can target
// instead of the callback directly, reachable even if the callback itself
// later moves.
type TrampolineChunk struct {
	isUsed bool

	// callbackAddress and backjumpAddress are out-of-band pointer cells:
	// callbackJump/the backjump instruction in codeBuffer dereference
	// them via RIP-relative addressing rather than embedding the target
	// inline, so relocating the chunk's own bytes never invalidates them.
	callbackAddress uintptr
	callbackJump    [sizeofAbsoluteJump]byte

	backjumpAddress uintptr

	codeBuffer     [maxCodeSizeWithBackjump + maxCodeSizeBonus]byte
	codeBufferSize int

	translationMap translationMap

	originalCode     [maxCodeSize]byte
	originalCodeSize int
}

func (c *TrampolineChunk) reset() {
	*c = TrampolineChunk{}
}

// codeBufferAddr returns the runtime address of the chunk's code buffer,
// i.e. the address a caller jumps to in order to run the trampoline.
func (c *TrampolineChunk) codeBufferAddr() uintptr {
	return addrOf(&c.codeBuffer[0])
}

// writeIndirectJump emits FF 25 <disp32> at dst (runtime address dstAddr)
// that dereferences the pointer cell at cellAddr. RIP-relative addressing
// lets the cell live anywhere within +-2GiB of the instruction, not just
// immediately after it.
func writeIndirectJump(dst []byte, dstAddr uintptr, cellAddr uintptr) {
	dst[0] = 0xff
	dst[1] = 0x25
	disp := int64(cellAddr) - int64(dstAddr+6)
	putUint32(dst[2:6], uint32(int32(disp)))
}

// writeAbsoluteJump stores target into the out-of-band cell and emits an
// indirect jump at dst (runtime address dstAddr) that dereferences it.
func writeAbsoluteJump(dst []byte, dstAddr uintptr, cell *uintptr, target uintptr) {
	*cell = target
	writeIndirectJump(dst, dstAddr, uintptr(unsafe.Pointer(cell)))
}

// writeCallbackJump sets the chunk's reserved callback-chaining slot.
func (c *TrampolineChunk) writeCallbackJump(callback uintptr) {
	writeAbsoluteJump(c.callbackJump[:], addrOf(&c.callbackJump[0]), &c.callbackAddress, callback)
}

// initCallbackSlot populates the reserved callback-chaining slot. Present
// on both arch variants so shared code can call it unconditionally; the
// 386 layout has no such slot (see chunk_386.go).
func (c *TrampolineChunk) initCallbackSlot(callback uintptr) {
	c.writeCallbackJump(callback)
}
