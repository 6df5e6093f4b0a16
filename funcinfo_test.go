package trampoline

import (
	"fmt"
	"reflect"
	"unsafe"
)

// functionBytes returns fn's entry address and the code bytes from there up
// to the start of whatever function in the module's function table comes
// next. Test support only: lets tests exercise Create/CreateEx against a
// real compiled function's prologue instead of hand-written bytes, the same
// role the teacher's funcSlice (redefine.go) plays for its own tests, built
// on the same runtime.findfunc linkname (findfunc.go).
func functionBytes(fn any) (uintptr, []byte, error) {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return 0, nil, fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}

	entry := fnv.Pointer()
	info := findfunc(entry)
	funcOffset := uint32(entry - info.datap.text)
	length := uint32(info.datap.etext - entry)

	for _, ft := range info.datap.ftab {
		if ft.entryoff <= funcOffset {
			continue
		}
		if testLength := ft.entryoff - funcOffset; testLength < length {
			length = testLength
		}
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(entry)), length)
	return entry, buf, nil
}
