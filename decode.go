package trampoline

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// decodeOne decodes the instruction beginning at buf[0], reporting
// ErrDecodeFailed on failure.
func decodeOne(buf []byte) (x86asm.Inst, error) {
	inst, err := x86asm.Decode(buf, decodeMode)
	if err != nil {
		return x86asm.Inst{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return inst, nil
}

// ripRelativeMem returns the instruction's RIP-relative memory operand, if
// it has one.
func ripRelativeMem(inst x86asm.Inst) (x86asm.Mem, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		mem, ok := arg.(x86asm.Mem)
		if ok && mem.Base == x86asm.RIP {
			return mem, true
		}
	}
	return x86asm.Mem{}, false
}

// relativeImm returns the instruction's relative branch displacement, if
// it has one.
func relativeImm(inst x86asm.Inst) (x86asm.Rel, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		rel, ok := arg.(x86asm.Rel)
		if ok {
			return rel, true
		}
	}
	return 0, false
}

// isRelative reports whether inst carries a RIP-relative memory operand or
// a relative branch displacement: the IS_RELATIVE attribute of spec.md.
func isRelative(inst x86asm.Inst) bool {
	if _, ok := ripRelativeMem(inst); ok {
		return true
	}
	_, ok := relativeImm(inst)
	return ok
}

// absoluteTarget computes the absolute address inst refers to, given the
// runtime address its first byte executes from.
func absoluteTarget(inst x86asm.Inst, runtimeAddress uint64) (uint64, error) {
	if mem, ok := ripRelativeMem(inst); ok {
		target := runtimeAddress + uint64(inst.Len) + uint64(mem.Disp)
		if inst.AddrSize == 32 {
			target &= 0xffffffff
		}
		return target, nil
	}

	if rel, ok := relativeImm(inst); ok {
		target := runtimeAddress + uint64(inst.Len) + uint64(int64(rel))
		if inst.Mode != 64 && inst.DataSize == 16 {
			target &= 0xffff
		}
		return target, nil
	}

	return 0, fmt.Errorf("%w: instruction has no relative operand", ErrDecodeFailed)
}

// isCall reports whether inst is any CALL form (near-relative or
// RIP-relative-indirect).
func isCall(inst x86asm.Inst) bool {
	return inst.Op == x86asm.CALL
}

// isJCXZ reports whether inst is JCXZ/JECXZ/JRCXZ.
func isJCXZ(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		return true
	}
	return false
}

// isLoop reports whether inst is LOOP/LOOPE/LOOPNE.
func isLoop(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	}
	return false
}
