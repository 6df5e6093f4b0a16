//go:build windows

package trampoline

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	memCommit  = 0x1000
	memReserve = 0x2000
	memRelease = 0x8000

	protRX  = windows.PAGE_EXECUTE_READ
	protRWX = windows.PAGE_EXECUTE_READWRITE
)

// systemInfo mirrors SYSTEM_INFO. golang.org/x/sys/windows doesn't wrap
// GetSystemInfo, so the call goes straight through kernel32 the way
// gohooker's trampoline_x64.go does it.
type systemInfo struct {
	processorArchitecture     uint16
	reserved                  uint16
	pageSize                  uint32
	minimumApplicationAddress uintptr
	maximumApplicationAddress uintptr
	activeProcessorMask       uintptr
	numberOfProcessors        uint32
	processorType             uint32
	allocationGranularity     uint32
	processorLevel            uint16
	processorRevision         uint16
}

var procGetSystemInfo = syscall.NewLazyDLL("kernel32.dll").NewProc("GetSystemInfo")

func getSystemInfo() systemInfo {
	var info systemInfo
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&info)))
	return info
}

func allocationGranularity() int {
	return int(getSystemInfo().allocationGranularity)
}

func applicationAddressBounds() (lo, hi uintptr, err error) {
	info := getSystemInfo()
	return info.minimumApplicationAddress, info.maximumApplicationAddress, nil
}

// probeReadable returns the greatest k<=limit such that [address,
// address+k) is committed and readable, accumulating successive
// VirtualQuery descriptors per spec.md 4.1.
func probeReadable(address uintptr, limit int) (int, error) {
	const readMask = windows.PAGE_EXECUTE_READ |
		windows.PAGE_EXECUTE_READWRITE |
		windows.PAGE_EXECUTE_WRITECOPY |
		windows.PAGE_READONLY |
		windows.PAGE_READWRITE |
		windows.PAGE_WRITECOPY

	readable := 0
	cursor := address

	for readable < limit {
		var mbi windows.MemoryBasicInformation
		err := windows.VirtualQuery(cursor, &mbi, unsafe.Sizeof(mbi))
		if err != nil {
			return 0, fmt.Errorf("%w: VirtualQuery: %v", ErrBadSyscall, err)
		}

		if mbi.State != windows.MEM_COMMIT || mbi.Protect&readMask == 0 {
			break
		}

		regionEnd := mbi.BaseAddress + uintptr(mbi.RegionSize)
		readable += int(regionEnd - cursor)
		cursor = regionEnd
	}

	if readable > limit {
		readable = limit
	}
	return readable, nil
}

// allocateAt attempts to reserve-and-commit size bytes of RWX memory at
// the exact address given, failing (ok=false) rather than erroring when
// the kernel can't place it there (ERROR_INVALID_ADDRESS and similar).
func allocateAt(address uintptr, size int) (buf []byte, ok bool, err error) {
	addr, allocErr := windows.VirtualAlloc(address, uintptr(size), memCommit|memReserve, protRWX)
	if allocErr != nil {
		return nil, false, nil
	}
	if addr != address {
		windows.VirtualFree(addr, 0, memRelease)
		return nil, false, nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), true, nil
}

func protectRegion(buf []byte, writable bool) error {
	prot := uint32(protRX)
	if writable {
		prot = protRWX
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	var oldProtect uint32
	if err := windows.VirtualProtect(addr, uintptr(len(buf)), prot, &oldProtect); err != nil {
		return fmt.Errorf("%w: VirtualProtect: %v", ErrBadSyscall, err)
	}
	return nil
}

func releaseRegion(buf []byte) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	if err := windows.VirtualFree(addr, 0, memRelease); err != nil {
		return fmt.Errorf("%w: VirtualFree: %v", ErrBadSyscall, err)
	}
	return nil
}
