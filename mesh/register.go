package mesh

import "log"

// Register is the value of one 64-bit CMN configuration register. Bit
// ranges are inclusive on both ends, matching the register tables in the
// CMN TRM.
type Register uint64

func bitsMask(lo, hi uint) uint64 {
	if lo > hi || hi > 63 {
		log.Fatalf("register: bad bit range [%d, %d]", lo, hi)
	}
	if hi-lo == 63 {
		return ^uint64(0)
	}
	return (uint64(1) << (hi - lo + 1)) - 1
}

// Bits extracts bits [lo, hi].
func (r Register) Bits(lo, hi uint) uint64 {
	return (uint64(r) >> lo) & bitsMask(lo, hi)
}

// Bit extracts a single bit.
func (r Register) Bit(n uint) uint64 {
	return r.Bits(n, n)
}

// SetBits returns a copy of r with bits [lo, hi] replaced by val.
func (r Register) SetBits(lo, hi uint, val uint64) Register {
	m := bitsMask(lo, hi)
	if val&^m != 0 {
		log.Fatalf("register: value %#x exceeds bit range [%d, %d]", val, lo, hi)
	}
	return (r &^ Register(m<<lo)) | Register(val<<lo)
}

// SetBit returns a copy of r with bit n replaced by val.
func (r Register) SetBit(n uint, val uint64) Register {
	return r.SetBits(n, n, val)
}
