package mesh

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lprylli/cmnperf/mmio"
)

// Driver reads and writes CMN registers at offsets relative to the start
// of the mesh register space.
type Driver interface {
	Read(reg uint64) Register
	Write(reg uint64, val uint64)
}

// DevGlob locates the device node exported by the cmn kernel driver, e.g.
// /dev/armcmn:CMN0:140000000:40000000 (base and size in hex).
var DevGlob = "/dev/armcmn:CMN%d:*"

// Iodrv is the production Driver, backed by a mapping of the whole mesh
// register space.
type Iodrv struct {
	path string
	base uintptr
	size uint64
}

// Open discovers the device node for the given mesh and maps its register
// space. Like everything at this layer, failure is fatal.
func Open(meshID int, readOnly bool) *Iodrv {
	pattern := fmt.Sprintf(DevGlob, meshID)
	devs, err := filepath.Glob(pattern)
	if err != nil || len(devs) == 0 {
		log.Fatalf("cmn device %s not found, is the armcmn kernel module loaded?", pattern)
	}
	if len(devs) > 1 {
		log.Fatalf("duplicated cmn device files: %v", devs)
	}
	path := devs[0]
	fields := strings.Split(path, ":")
	size, err := strconv.ParseUint(fields[len(fields)-1], 16, 64)
	if err != nil || size == 0 {
		log.Fatalf("cannot parse register space size from %s", path)
	}
	return &Iodrv{
		path: path,
		base: mmio.Map(path, int64(size), readOnly),
		size: size,
	}
}

// Size returns the byte length of the register space.
func (d *Iodrv) Size() uint64 { return d.size }

func (d *Iodrv) check(reg uint64) {
	if reg+8 > d.size {
		log.Fatalf("%s: register %#x beyond register space (%#x)", d.path, reg, d.size)
	}
}

func (d *Iodrv) Read(reg uint64) Register {
	d.check(reg)
	return Register(mmio.Read64(d.base + uintptr(reg)))
}

func (d *Iodrv) Write(reg uint64, val uint64) {
	d.check(reg)
	mmio.Write64(d.base+uintptr(reg), val)
}
