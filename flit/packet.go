// Package flit decodes CMN trace packets and computes watchpoint
// value/mask pairs from flit field matches.
package flit

import "log"

// Packet is one 192-bit trace packet, captured as the three words of a
// DTM FIFO entry.
type Packet [3]uint64

// NewPacket builds a packet from the three FIFO entry words.
func NewPacket(w0, w1, w2 uint64) Packet {
	return Packet{w0, w1, w2}
}

// Bits extracts bits [lo, hi] (inclusive) of the packet. The range may
// cross word boundaries but is at most 64 bits wide.
func (p Packet) Bits(lo, hi uint) uint64 {
	if lo > hi || hi > 191 || hi-lo > 63 {
		log.Fatalf("flit: bad packet bit range [%d, %d]", lo, hi)
	}
	word, off := lo/64, lo%64
	v := p[word] >> off
	if word < 2 && off > 0 && off+(hi-lo) >= 64 {
		v |= p[word+1] << (64 - off)
	}
	width := hi - lo + 1
	if width == 64 {
		return v
	}
	return v & ((uint64(1) << width) - 1)
}
