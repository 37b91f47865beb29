package pmu

import (
	"encoding/binary"
	"log"

	"github.com/valyala/bytebufferpool"

	"github.com/lprylli/cmnperf/flit"
)

// packetBytes is the on-wire size of one trace packet.
const packetBytes = 24

// PacketBuffer accumulates captured trace packets. Long traces reach tens
// of megabytes, so storage comes from a byte buffer pool and is recycled
// on Release.
type PacketBuffer struct {
	buf *bytebufferpool.ByteBuffer
}

func NewPacketBuffer() *PacketBuffer {
	return &PacketBuffer{buf: bytebufferpool.Get()}
}

// Append records one FIFO entry.
func (b *PacketBuffer) Append(w0, w1, w2 uint64) {
	var rec [packetBytes]byte
	binary.LittleEndian.PutUint64(rec[0:], w0)
	binary.LittleEndian.PutUint64(rec[8:], w1)
	binary.LittleEndian.PutUint64(rec[16:], w2)
	b.buf.Write(rec[:])
}

// Len returns the number of captured packets.
func (b *PacketBuffer) Len() int { return b.buf.Len() / packetBytes }

// Size returns the captured bytes.
func (b *PacketBuffer) Size() int { return b.buf.Len() }

// Packet returns the i-th captured packet.
func (b *PacketBuffer) Packet(i int) flit.Packet {
	if i < 0 || i >= b.Len() {
		log.Fatalf("pmu: packet index %d out of range (%d packets)", i, b.Len())
	}
	rec := b.buf.B[i*packetBytes:]
	return flit.NewPacket(
		binary.LittleEndian.Uint64(rec[0:]),
		binary.LittleEndian.Uint64(rec[8:]),
		binary.LittleEndian.Uint64(rec[16:]),
	)
}

// Bytes returns the raw packet records.
func (b *PacketBuffer) Bytes() []byte { return b.buf.B }

// Release returns the storage to the pool. The buffer must not be used
// afterwards.
func (b *PacketBuffer) Release() {
	bytebufferpool.Put(b.buf)
	b.buf = nil
}
