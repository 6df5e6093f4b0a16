//go:build !windows

package trampoline

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	protRX  = unix.PROT_READ | unix.PROT_EXEC
	protRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
)

func allocationGranularity() int {
	return unix.Getpagesize()
}

// probeReadable returns the greatest k<=limit such that [address,
// address+k) is committed and readable. Residency (and thus reachability
// without faulting) is queried a page at a time with mincore, since Unix
// has no single-call equivalent of VirtualQuery's region accounting.
func probeReadable(address uintptr, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	pageSize := unix.Getpagesize()
	pageStart := roundDownToGranule(address, pageSize)
	within := int(address - pageStart)
	pages := (within + limit + pageSize - 1) / pageSize

	length := uintptr(pages * pageSize)
	vec := make([]byte, pages)

	// x/sys/unix has no mincore wrapper, so this goes through the raw
	// syscall, the same way allocateAt reaches mmap(2).
	_, _, errno := unix.Syscall(unix.SYS_MINCORE, pageStart, length, uintptr(unsafe.Pointer(&vec[0])))
	if errno != 0 {
		return 0, fmt.Errorf("%w: mincore: %v", ErrBadSyscall, errno)
	}

	readable := 0
	for i, residency := range vec {
		if residency&1 == 0 {
			break
		}
		pageBytes := pageSize
		if i == 0 {
			pageBytes -= within
		}
		readable += pageBytes
	}

	if readable > limit {
		readable = limit
	}
	return readable, nil
}

// allocateAt attempts to reserve-and-commit size bytes of RWX memory at
// the exact address given, failing (ok=false) rather than erroring when
// the kernel picks a different address because the range is occupied.
//
// The high-level unix.Mmap wrapper always passes addr=0 to the underlying
// syscall (it only ever lets the kernel choose), so exact-address
// placement has to go through the raw mmap(2) syscall directly, the same
// way the region allocator's "commit at this exact base" requirement is
// met by VirtualAlloc(lpAddress, ...) on Windows.
func allocateAt(address uintptr, size int) (buf []byte, ok bool, err error) {
	granule := unix.Getpagesize()
	size = roundUpToGranule(size, granule)

	flags := unix.MAP_PRIVATE | unix.MAP_ANON | _MAP_FIXED_NOREPLACE

	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		address,
		uintptr(size),
		uintptr(protRWX),
		uintptr(flags),
		^uintptr(0), // fd: -1
		0,
	)
	if errno != 0 {
		if errno == unix.EEXIST || errno == unix.EINVAL {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: mmap: %v", ErrBadSyscall, errno)
	}

	if addr != uintptr(address) {
		unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(size), 0)
		return nil, false, nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), true, nil
}

func protectRegion(buf []byte, writable bool) error {
	prot := protRX
	if writable {
		prot = protRWX
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	pageSize := unix.Getpagesize()
	pageStart := roundDownToGranule(addr, pageSize)
	regionSize := roundUpToGranule(int(addr-pageStart)+len(buf), pageSize)
	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)

	if err := unix.Mprotect(region, prot); err != nil {
		return fmt.Errorf("%w: mprotect: %v", ErrBadSyscall, err)
	}
	return nil
}

// releaseRegion unmaps a region obtained from allocateAt. It goes through
// the raw munmap(2) syscall rather than unix.Munmap, which only releases
// mappings it created itself (it tracks them in an internal registry keyed
// by slice address) and would reject one built from allocateAt's raw
// mmap(2) call.
func releaseRegion(buf []byte) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(len(buf)), 0)
	if errno != 0 {
		return fmt.Errorf("%w: munmap: %v", ErrBadSyscall, errno)
	}
	return nil
}
