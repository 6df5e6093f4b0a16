//go:build amd64

package trampoline

import (
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// rewriteCall relocates a CALL so it still reaches its original target
// from the trampoline's new position. An indirect CALL through a
// RIP-relative memory operand only needs its displacement rebiased, like
// any other RIP-relative instruction, since the operand still resolves to
// the same absolute memory location at runtime. A direct CALL rel32 is
// re-encoded with a recomputed displacement, exactly like the teacher's
// relocateFunc (asm_amd64.go) tries first: combinedRange already folds
// this CALL's own target into the chunk's placement window, and the
// region-placement invariant keeps the chunk within rangeOfRelativeJump of
// every address in that window, so the re-biased displacement always
// fits. A register-clobbering absolute-call fallback would corrupt a
// callee-saved register (RBP restores to the call target on return, not
// the caller's frame pointer) for no reachability gain.
func rewriteCall(inst x86asm.Inst, srcBytes, dst []byte, srcAddr uint64, dstAddr uintptr) (int, error) {
	if mem, ok := ripRelativeMem(inst); ok {
		return rebiasRIPMem(inst, mem, srcBytes, dst, srcAddr, dstAddr)
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
	if newRel < math.MinInt32 || newRel > math.MaxInt32 {
		return 0, fmt.Errorf("%w: CALL target out of reach after relocation", ErrOutOfRange)
	}

	dst[0] = 0xe8 // CALL rel32
	putUint32(dst[1:sizeofRelativeJump], uint32(int32(newRel)))
	return sizeofRelativeJump, nil
}
