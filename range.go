package trampoline

// addressRange is the combined [lo, hi] window of every absolute address a
// prologue's relative instructions refer to, plus whether any such
// instruction was seen at all.
type addressRange struct {
	lo, hi      uint64
	anyRelative bool
}

// prologueRange decodes forward from buf[0] (whose first byte executes
// from runtimeAddress), accumulating the absolute target of every relative
// instruction, until at least minBytes have been consumed.
//
// On 386 this is a no-op returning anyRelative=false: a rel32 displacement
// reaches the entire 32-bit address space, so no region-placement
// constraint follows from relative operands.
func prologueRange(buf []byte, runtimeAddress uint64, minBytes int) (addressRange, error) {
	var r addressRange

	if decodeMode == 32 {
		return r, nil
	}

	offset := 0
	for offset < minBytes {
		if offset >= len(buf) {
			return r, ErrInvalidOperation
		}

		inst, err := decodeOne(buf[offset:])
		if err != nil {
			return r, err
		}

		if isRelative(inst) {
			target, err := absoluteTarget(inst, runtimeAddress+uint64(offset))
			if err != nil {
				return r, err
			}
			if !r.anyRelative || target < r.lo {
				r.lo = target
			}
			if !r.anyRelative || target > r.hi {
				r.hi = target
			}
			r.anyRelative = true
		}

		offset += inst.Len
	}

	return r, nil
}

// combinedRange computes the [lo, hi] window create/createEx place a chunk
// within: every absolute address minBytes worth of the prologue's relative
// instructions refer to, plus the target address itself. Deliberately
// scans minBytesToReloc bytes rather than the reference engine's fixed
// sizeofRelativeJump (5) — ZyrexTrampolineCreateEx always passes the
// latter, which only guarantees placement reachability for the minimum
// hook-patch window, not for every instruction init_chunk actually ends up
// relocating when minBytesToReloc is larger. spec.md §8's testable
// property ("for every relative instruction in the relocated prologue,
// |trampoline address - target| <= RANGE") only holds with the wider scan.
// On x86-32 this degenerates to just the target, matching the
// rangeOfRelativeJump carve-out below.
func combinedRange(buf []byte, target uint64, minBytesToReloc int) (lo, hi uint64, err error) {
	r, err := prologueRange(buf, target, minBytesToReloc)
	if err != nil {
		return 0, 0, err
	}

	lo, hi = target, target
	if r.anyRelative {
		if r.lo < lo {
			lo = r.lo
		}
		if r.hi > hi {
			hi = r.hi
		}
	}

	if decodeMode == 64 && hi-lo > rangeOfRelativeJump {
		return 0, 0, ErrOutOfRange
	}

	return lo, hi, nil
}

// inRange reports whether candidate lies within rangeOfRelativeJump of
// both lo and hi.
func inRange(candidate, lo, hi uint64) bool {
	return withinReach(candidate, lo) && withinReach(candidate, hi)
}

func withinReach(a, b uint64) bool {
	var diff uint64
	if a >= b {
		diff = a - b
	} else {
		diff = b - a
	}
	return diff <= rangeOfRelativeJump
}
