//go:build 386

package trampoline

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// rewriteCall re-encodes a relocated CALL rel32 with a displacement for
// its new position. 32-bit rel32 reaches the entire address space, so
// unlike amd64 there's no case where the original target becomes
// unreachable, and no indirect chaining trick is needed.
func rewriteCall(inst x86asm.Inst, srcBytes, dst []byte, srcAddr uint64, dstAddr uintptr) (int, error) {
	if _, ok := ripRelativeMem(inst); ok {
		// Unreachable in practice: x86asm never reports a RIP-relative
		// operand when decoding in 32-bit mode.
		return 0, fmt.Errorf("%w: indirect CALL rewrite not supported on 386", ErrDecodeFailed)
	}

	rel, ok := relativeImm(inst)
	if !ok {
		return 0, fmt.Errorf("%w: CALL has no relative operand", ErrDecodeFailed)
	}
	if len(dst) < sizeofRelativeJump {
		return 0, fmt.Errorf("%w: no room for CALL rewrite", ErrOutOfRange)
	}

	target := srcAddr + uint64(inst.Len) + uint64(int64(rel))
	newRel := int64(target) - int64(dstAddr) - int64(sizeofRelativeJump)

	dst[0] = 0xe8 // CALL rel32
	putUint32(dst[1:sizeofRelativeJump], uint32(int32(newRel)))
	return sizeofRelativeJump, nil
}
