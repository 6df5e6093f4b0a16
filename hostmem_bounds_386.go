//go:build 386 && !windows

package trampoline

// applicationAddressBounds approximates the host's usable address range:
// the full 32-bit range on 386.
func applicationAddressBounds() (lo, hi uintptr, err error) {
	return 0x10000, 0xfffff000, nil
}
