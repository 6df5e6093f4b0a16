package trampoline

import (
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// initChunk decodes and relocates instructions from src into chunk's code
// buffer until at least minBytesToReloc source bytes have been consumed,
// then appends the back-jump to the original function. src is the
// prologue bytes available to read (its length bounds how far decoding
// may go); runtimeAddress is the address those bytes execute from.
//
// Grounded on ZyrexTrampolineChunkInit: decode one instruction at a time,
// copy it verbatim unless it's IS_RELATIVE, in which case rewrite it for
// its new position. Unlike the reference engine (whose CALL/JCXZ/LOOP
// bodies are unfinished TODOs), every relative class here except
// LOOPE/LOOPNE is rewritten; those two fail with ErrRewriteDisabled. See
// rewriteCall (relocator_amd64.go/relocator_386.go),
// rewriteJCXZ, rewriteLoop and rewriteRelative below.
func initChunk(chunk *TrampolineChunk, src []byte, runtimeAddress uintptr, callback uintptr,
	minBytesToReloc int, flags RewriteFlags) error {

	chunk.isUsed = true
	chunk.initCallbackSlot(callback)

	bytesRead := 0
	bytesWritten := 0

	for bytesRead < minBytesToReloc {
		if bytesRead >= len(src) {
			return fmt.Errorf("%w: ran out of readable bytes before min_bytes_to_reloc", ErrInvalidOperation)
		}
		if chunk.translationMap.count >= len(chunk.translationMap.items) {
			return fmt.Errorf("%w: translation map full", ErrOutOfRange)
		}
		if bytesRead >= len(chunk.originalCode) {
			return fmt.Errorf("%w: prologue longer than a chunk can hold", ErrOutOfRange)
		}

		inst, err := decodeOne(src[bytesRead:])
		if err != nil {
			return err
		}

		instRuntimeAddr := uint64(runtimeAddress) + uint64(bytesRead)
		dst := chunk.codeBuffer[bytesWritten:]
		dstAddr := addrOf(&chunk.codeBuffer[bytesWritten])

		written, err := relocateInstruction(inst, src[bytesRead:bytesRead+inst.Len], dst, instRuntimeAddr, dstAddr, flags)
		if err != nil {
			return err
		}

		chunk.translationMap.append(bytesRead, bytesWritten)

		bytesRead += inst.Len
		bytesWritten += written
	}

	if bytesWritten+sizeofAbsoluteJump > len(chunk.codeBuffer) {
		return fmt.Errorf("%w: no room for the back-jump", ErrOutOfRange)
	}
	target := runtimeAddress + uintptr(bytesRead)
	writeAbsoluteJump(chunk.codeBuffer[bytesWritten:bytesWritten+sizeofAbsoluteJump],
		addrOf(&chunk.codeBuffer[bytesWritten]), &chunk.backjumpAddress, target)
	bytesWritten += sizeofAbsoluteJump

	fillTrap(chunk.codeBuffer[bytesWritten:])
	chunk.codeBufferSize = bytesWritten

	copy(chunk.originalCode[:], src[:bytesRead])
	chunk.originalCodeSize = bytesRead

	return nil
}

// relocateInstruction copies or rewrites one instruction into dst (runtime
// address dstAddr), returning the number of bytes written. Non-relative
// instructions are copied verbatim; relative ones are dispatched to the
// rewrite emitters below, gated by flags.
func relocateInstruction(inst x86asm.Inst, srcBytes []byte, dst []byte, srcAddr uint64, dstAddr uintptr,
	flags RewriteFlags) (int, error) {

	if !isRelative(inst) {
		if len(dst) < inst.Len {
			return 0, fmt.Errorf("%w: no room to relocate instruction", ErrOutOfRange)
		}
		copy(dst[:inst.Len], srcBytes)
		return inst.Len, nil
	}

	switch {
	case isCall(inst):
		if !flags.has(RewriteCall) {
			return 0, fmt.Errorf("%w: CALL requires RewriteCall", ErrRewriteDisabled)
		}
		return rewriteCall(inst, srcBytes, dst, srcAddr, dstAddr)

	case isJCXZ(inst):
		if !flags.has(RewriteJCXZ) {
			return 0, fmt.Errorf("%w: JCXZ/JECXZ/JRCXZ requires RewriteJCXZ", ErrRewriteDisabled)
		}
		return rewriteJCXZ(inst, srcAddr, dst, dstAddr)

	case isLoop(inst):
		if !flags.has(RewriteLoop) {
			return 0, fmt.Errorf("%w: LOOP/LOOPE/LOOPNE requires RewriteLoop", ErrRewriteDisabled)
		}
		return rewriteLoop(inst, srcAddr, dst, dstAddr)

	default:
		// Plain relative branch (JMP rel8/rel32, Jcc rel8/rel32) or a
		// RIP-relative memory operand on a non-CALL instruction (e.g. a
		// LEA/MOV): both are handled by the general rewrite, since
		// reassembling an arbitrary mnemonic's original opcode bytes with
		// a recomputed displacement is cheaper than re-deriving them.
		return rewriteRelative(inst, srcBytes, dst, srcAddr, dstAddr)
	}
}

// rebiasRIPMem relocates an instruction addressing memory via a
// RIP-relative operand: the encoding is copied verbatim except for its
// disp32 (located via inst.PCRelOff, since an immediate may follow it),
// which is recomputed for the new position. Grounded on
// the teacher's relocateFunc, which does the same for LEA/MOV; naturally
// unreachable when decodeMode is 32, since x86asm never reports a
// RIP-relative operand outside 64-bit decode.
func rebiasRIPMem(inst x86asm.Inst, mem x86asm.Mem, srcBytes, dst []byte, srcAddr uint64, dstAddr uintptr) (int, error) {
	if len(dst) < inst.Len {
		return 0, fmt.Errorf("%w: no room to relocate instruction", ErrOutOfRange)
	}
	if inst.PCRel != 4 || inst.PCRelOff+4 > inst.Len {
		return 0, fmt.Errorf("%w: RIP-relative instruction without a 32-bit displacement", ErrDecodeFailed)
	}

	copy(dst[:inst.Len], srcBytes)

	target, err := absoluteTarget(inst, srcAddr)
	if err != nil {
		return 0, err
	}
	newDisp := int64(target) - int64(dstAddr) - int64(inst.Len)
	if newDisp < math.MinInt32 || newDisp > math.MaxInt32 {
		return 0, fmt.Errorf("%w: RIP-relative displacement out of reach after relocation", ErrOutOfRange)
	}
	putUint32(dst[inst.PCRelOff:inst.PCRelOff+4], uint32(int32(newDisp)))

	return inst.Len, nil
}

// rewriteRelative rewrites a plain relative branch (JMP or a conditional
// Jcc) or a non-CALL RIP-relative instruction (LEA, MOV, ...), widening
// rel8 forms to rel32 so the recomputed displacement always fits.
func rewriteRelative(inst x86asm.Inst, srcBytes, dst []byte, srcAddr uint64, dstAddr uintptr) (int, error) {
	if mem, ok := ripRelativeMem(inst); ok {
		return rebiasRIPMem(inst, mem, srcBytes, dst, srcAddr, dstAddr)
	}

	rel, ok := relativeImm(inst)
	if !ok {
		return 0, fmt.Errorf("%w: expected a relative operand", ErrDecodeFailed)
	}
	target := srcAddr + uint64(inst.Len) + uint64(int64(rel))

	if inst.Op == x86asm.JMP {
		if len(dst) < sizeofRelativeJump {
			return 0, fmt.Errorf("%w: no room for JMP rewrite", ErrOutOfRange)
		}
		newRel := int64(target) - int64(dstAddr) - int64(sizeofRelativeJump)
		if newRel < math.MinInt32 || newRel > math.MaxInt32 {
			return 0, fmt.Errorf("%w: JMP target out of reach after relocation", ErrOutOfRange)
		}
		dst[0] = 0xe9
		putUint32(dst[1:sizeofRelativeJump], uint32(int32(newRel)))
		return sizeofRelativeJump, nil
	}

	cc, ok := conditionCode(inst.Op)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported relative mnemonic %v", ErrDecodeFailed, inst.Op)
	}
	const seqLen = 2 + sizeofRelativeJump // 0F 8x + rel32
	if len(dst) < seqLen {
		return 0, fmt.Errorf("%w: no room for Jcc rewrite", ErrOutOfRange)
	}
	newRel := int64(target) - int64(dstAddr) - int64(seqLen)
	if newRel < math.MinInt32 || newRel > math.MaxInt32 {
		return 0, fmt.Errorf("%w: Jcc target out of reach after relocation", ErrOutOfRange)
	}
	dst[0] = 0x0f
	dst[1] = 0x80 | cc
	putUint32(dst[2:seqLen], uint32(int32(newRel)))
	return seqLen, nil
}

// conditionCode maps a Jcc mnemonic to its 4-bit condition code, shared by
// the short (7x) and near (0F 8x) encodings.
func conditionCode(op x86asm.Op) (byte, bool) {
	switch op {
	case x86asm.JO:
		return 0x0, true
	case x86asm.JNO:
		return 0x1, true
	case x86asm.JB:
		return 0x2, true
	case x86asm.JAE:
		return 0x3, true
	case x86asm.JE:
		return 0x4, true
	case x86asm.JNE:
		return 0x5, true
	case x86asm.JBE:
		return 0x6, true
	case x86asm.JA:
		return 0x7, true
	case x86asm.JS:
		return 0x8, true
	case x86asm.JNS:
		return 0x9, true
	case x86asm.JP:
		return 0xa, true
	case x86asm.JNP:
		return 0xb, true
	case x86asm.JL:
		return 0xc, true
	case x86asm.JGE:
		return 0xd, true
	case x86asm.JLE:
		return 0xe, true
	case x86asm.JG:
		return 0xf, true
	}
	return 0, false
}

// rewriteJCXZ widens JCXZ/JECXZ/JRCXZ (rel8-only, no near form exists) into
// the standard 3-instruction short-to-near sequence.
func rewriteJCXZ(inst x86asm.Inst, srcAddr uint64, dst []byte, dstAddr uintptr) (int, error) {
	target, err := absoluteTarget(inst, srcAddr)
	if err != nil {
		return 0, err
	}
	return emitWidenedShortCircuit(dst, dstAddr, inst.AddrSize, target)
}

// rewriteLoop widens LOOP/LOOPE/LOOPNE into an explicit counter decrement
// followed by the same short-to-near widened short-circuit rewriteJCXZ
// uses, since there's no near-form LOOP either. This only reproduces the
// counter-zero test LOOP shares with JCXZ; LOOPE/LOOPNE's additional ZF
// test is not preserved, so rewriteLoop itself rejects LOOPE/LOOPNE with
// ErrRewriteDisabled, even when RewriteLoop is set, rather than silently
// dropping the ZF condition.
func rewriteLoop(inst x86asm.Inst, srcAddr uint64, dst []byte, dstAddr uintptr) (int, error) {
	if inst.Op != x86asm.LOOP {
		return 0, fmt.Errorf("%w: LOOPE/LOOPNE rewrite would drop the ZF test", ErrRewriteDisabled)
	}

	target, err := absoluteTarget(inst, srcAddr)
	if err != nil {
		return 0, err
	}

	decLen, err := emitDecCounter(dst, inst.AddrSize)
	if err != nil {
		return 0, err
	}

	written, err := emitWidenedShortCircuit(dst[decLen:], dstAddr+uintptr(decLen), inst.AddrSize, target)
	if err != nil {
		return 0, err
	}
	return decLen + written, nil
}

// emitDecCounter emits a DEC of the counter register matching addrSize
// (RCX/ECX/CX per the Intel manual's rule that LOOP's counter width
// follows the address-size attribute, not the operand-size one).
func emitDecCounter(dst []byte, addrSize int) (int, error) {
	switch addrSize {
	case 64:
		if len(dst) < 3 {
			return 0, fmt.Errorf("%w: no room for DEC rcx", ErrOutOfRange)
		}
		dst[0], dst[1], dst[2] = 0x48, 0xff, 0xc9 // REX.W FF /1
		return 3, nil
	case 32:
		if len(dst) < 2 {
			return 0, fmt.Errorf("%w: no room for DEC ecx", ErrOutOfRange)
		}
		dst[0], dst[1] = 0xff, 0xc9 // FF /1
		return 2, nil
	case 16:
		if len(dst) < 3 {
			return 0, fmt.Errorf("%w: no room for DEC cx", ErrOutOfRange)
		}
		dst[0], dst[1], dst[2] = 0x66, 0xff, 0xc9 // 66 FF /1
		return 3, nil
	}
	return 0, fmt.Errorf("%w: unsupported LOOP address size %d", ErrDecodeFailed, addrSize)
}

// emitWidenedShortCircuit emits the standard short-to-near widening for a
// short-only conditional (E3 JrCXZ, here; the same shape any short-only
// jump needs): a short-circuit over a short jump over a near jump, i.e.
//
//	<addr-size prefix?> E3 02     ; JrCXZ +2 (taken: fall into the near jmp)
//	EB 05                         ; JMP +5   (not taken: skip the near jmp)
//	E9 <rel32>                    ; JMP near target
//
// An address-size override prefix is emitted when addrSize differs from
// this arch's natural address size (decodeMode), so the re-emitted
// JrCXZ tests the same width counter register the original instruction
// did.
func emitWidenedShortCircuit(dst []byte, dstAddr uintptr, addrSize int, target uint64) (int, error) {
	prefixLen := 0
	if addrSize != decodeMode {
		prefixLen = 1
	}
	total := prefixLen + 2 + 2 + 5
	if len(dst) < total {
		return 0, fmt.Errorf("%w: no room for widened conditional jump", ErrOutOfRange)
	}

	i := 0
	if prefixLen == 1 {
		dst[i] = 0x67
		i++
	}
	dst[i] = 0xe3 // JrCXZ
	dst[i+1] = 2
	i += 2

	dst[i] = 0xeb // JMP rel8
	dst[i+1] = 5
	i += 2

	dst[i] = 0xe9 // JMP rel32
	rel32 := int64(target) - int64(dstAddr) - int64(total)
	if rel32 < math.MinInt32 || rel32 > math.MaxInt32 {
		return 0, fmt.Errorf("%w: widened jump target out of reach after relocation", ErrOutOfRange)
	}
	putUint32(dst[i+1:i+5], uint32(int32(rel32)))

	return total, nil
}
