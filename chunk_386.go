//go:build 386

package trampoline

import "unsafe"

// TrampolineChunk is a fixed-size slot holding one relocated prologue. The
// 32-bit layout has no indirect call-through slot; CALL rewrites always
// reach their target directly (see relocator_386.go), since a 32-bit rel32
// displacement already covers the full address space.
type TrampolineChunk struct {
	isUsed bool

	// backjumpAddress is an out-of-band pointer cell: the backjump
	// instruction in codeBuffer dereferences it via an absolute ModRM
	// operand, so relocating the chunk's own bytes never invalidates it.
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

func (c *TrampolineChunk) codeBufferAddr() uintptr {
	return addrOf(&c.codeBuffer[0])
}

// writeAbsoluteJump stores target into the out-of-band cell and emits an
// indirect jump at dst through it. On 32-bit x86 the ModRM operand of
// FF /4 addresses the cell directly (there is no RIP-relative mode), so
// dstAddr plays no part in the encoding; it's accepted only so callers can
// treat both arch variants identically.
func writeAbsoluteJump(dst []byte, dstAddr uintptr, cell *uintptr, target uintptr) {
	*cell = target
	cellAddr := uintptr(unsafe.Pointer(cell))

	dst[0] = 0xff
	dst[1] = 0x25
	putUint32(dst[2:6], uint32(cellAddr))
}

// initCallbackSlot is a no-op on 386: this arch has no callback-chaining
// slot, but shared code calls it unconditionally so both arch variants
// need the method.
func (c *TrampolineChunk) initCallbackSlot(callback uintptr) {}
