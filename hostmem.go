package trampoline

// The host virtual-memory service the engine consumes: allocation-granule
// query, application address bounds, committed-and-readable probing,
// exact-address reserve/commit, protection change, and release. Each OS
// file below (hostmem_unix.go, hostmem_windows.go) implements the same
// function set.
//
// allocationGranularity returns the host's allocation granule in bytes;
// every region is exactly one granule.
//
// applicationAddressBounds returns the host's usable address range, used
// to clamp region-placement candidates.
//
// probeReadable(address, limit) returns the greatest k<=limit such that
// [address, address+k) is committed and readable, per spec.md 4.1.
//
// allocateAt(address, size) attempts to reserve-and-commit exactly `size`
// bytes of RWX memory starting at `address`. It reports ok=false (not an
// error) when the request couldn't be placed at that exact address because
// the range is occupied; on Unix any other failure is ErrBadSyscall, while
// the Windows variant reports every VirtualAlloc failure as ok=false.
//
// protectRegion(buf, writable) flips buf's protection between
// EXECUTE_READ and EXECUTE_READWRITE.
//
// releaseRegion(buf) releases a region obtained from allocateAt.

func roundDownToGranule(addr uintptr, granule int) uintptr {
	g := uintptr(granule)
	return addr &^ (g - 1)
}

func roundUpToGranule(size, granule int) int {
	return (size + granule - 1) &^ (granule - 1)
}
