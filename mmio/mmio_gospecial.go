package mmio

import "unsafe"

// Read64 and Write64 are kept out of line so the compiler cannot merge,
// reorder or elide accesses to device registers.

//go:noinline
//go:nosplit
func Read64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

//go:noinline
//go:nosplit
func Write64(addr uintptr, val uint64) {
	*(*uint64)(unsafe.Pointer(addr)) = val
}
