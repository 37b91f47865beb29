// Package mmio maps a device's register space into the process and
// performs raw 64-bit loads and stores against it.
//
// A mapping obtained from Map lives until the process exits; there is no
// unmap operation. Read64/Write64 do not validate the address: callers
// must stay inside [base, base+size) and keep 8-byte alignment.
package mmio

import (
	"log"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Map opens the device at path and maps size bytes from offset 0 as a
// shared mapping. The descriptor is closed right after mapping; the
// mapping itself keeps the device pinned. The returned address is the
// start of the mapped range.
//
// Failure to open or map is fatal: there is no recovery from an
// unreachable register space.
func Map(path string, size int64, readOnly bool) uintptr {
	flags := unix.O_RDWR
	prot := unix.PROT_READ | unix.PROT_WRITE
	if readOnly {
		flags = unix.O_RDONLY
		prot = unix.PROT_READ
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		log.Fatalf("mmio: open %s: %s", path, err)
	}
	mem, err := unix.Mmap(fd, 0, int(size), prot, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		log.Fatalf("mmio: map %s (%#x bytes): %s", path, size, err)
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}
