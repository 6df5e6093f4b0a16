package trampoline

import "fmt"

// allocateRegion implements spec.md 4.5: probe candidate base addresses
// above and below the midpoint of [lo, hi], aligned to the host allocation
// granule, until one can be committed as a fresh RWX region.
//
// Each candidate is tried with a single exact-address allocation attempt;
// unlike the reference engine, which steps past an occupied descriptor by
// its exact reported size (requiring a descriptor-size query this port's
// host-memory surface doesn't expose uniformly across Unix and Windows),
// this steps by one granule on failure. Slower in the presence of large
// occupied mappings, but correct, and the granule-per-allocation-attempt
// cost is the same primitive VirtualQuery stepping would spend anyway.
func allocateRegion(lo, hi uint64, chunksPerRegion int) (*trampolineRegion, error) {
	granule := allocationGranularity()
	regionSize := granule

	minAddr, maxAddr, err := applicationAddressBounds()
	if err != nil {
		return nil, err
	}

	mid := lo + (hi-lo)/2
	start := roundDownToGranule(uintptr(mid), granule)

	lowCandidate := start
	highCandidate := start
	lowExhausted := lowCandidate < minAddr
	highExhausted := highCandidate > maxAddr

	for !lowExhausted || !highExhausted {
		if !highExhausted {
			if !inRange(uint64(highCandidate), lo, hi) || highCandidate > maxAddr {
				highExhausted = true
			} else {
				if buf, ok, err := allocateAt(highCandidate, regionSize); err != nil {
					return nil, err
				} else if ok {
					return newRegion(buf, chunksPerRegion), nil
				}
				highCandidate += uintptr(granule)
			}
		}

		if !lowExhausted {
			if !inRange(uint64(lowCandidate), lo, hi) || lowCandidate < minAddr {
				lowExhausted = true
			} else {
				if buf, ok, err := allocateAt(lowCandidate, regionSize); err != nil {
					return nil, err
				} else if ok {
					return newRegion(buf, chunksPerRegion), nil
				}
				if lowCandidate < uintptr(granule) {
					lowExhausted = true
				} else {
					lowCandidate -= uintptr(granule)
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: no region placement within reach of target", ErrOutOfRange)
}
