package pmu

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Trace log file layout, little endian:
//
//	magic "CMNT", u32 version, u32 event count
//	per event: u16 name length, name, u8 channel selector,
//	           u32 packet count, raw 24-byte packets
const (
	traceMagic   = 0x544e4d43 // "CMNT"
	traceVersion = 1
)

var selChn = [4]string{"req", "rsp", "snp", "dat"}

// TraceEvent is one event's capture as stored in a trace log.
type TraceEvent struct {
	Name    string
	Channel string
	Packets *PacketBuffer
}

// SaveTrace writes the capture of all events to path.
func SaveTrace(path string, events []*Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := writeTrace(w, events); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTrace(w io.Writer, events []*Event) error {
	hdr := []interface{}{
		uint32(traceMagic), uint32(traceVersion), uint32(len(events)),
	}
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, ev := range events {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(ev.Name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ev.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(ev.ChnSel)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(ev.Packets.Len())); err != nil {
			return err
		}
		if _, err := w.Write(ev.Packets.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// LoadTrace reads a trace log produced by SaveTrace.
func LoadTrace(path string) ([]*TraceEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic, version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != traceMagic {
		return nil, fmt.Errorf("%s: not a trace log", path)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != traceVersion {
		return nil, fmt.Errorf("%s: unsupported trace log version %d", path, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	events := make([]*TraceEvent, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		var sel uint8
		if err := binary.Read(r, binary.LittleEndian, &sel); err != nil {
			return nil, err
		}
		if sel >= 4 {
			return nil, fmt.Errorf("%s: bad channel selector %d", path, sel)
		}
		var npackets uint32
		if err := binary.Read(r, binary.LittleEndian, &npackets); err != nil {
			return nil, err
		}
		buf := NewPacketBuffer()
		if _, err := io.CopyN(buf.buf, r, int64(npackets)*packetBytes); err != nil {
			return nil, err
		}
		events = append(events, &TraceEvent{
			Name:    string(name),
			Channel: selChn[sel],
			Packets: buf,
		})
	}
	return events, nil
}
