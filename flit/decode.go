package flit

import "log"

// Field is one flit field within a trace packet.
type Field struct {
	Name   string
	Lo, Hi uint
}

// Flit field positions within a control flit trace packet, CMN-700 with
// MPAM enabled. The cycle count occupies the top of the third word when
// cc_enable is set.
var (
	reqFields = []Field{
		{"srcid", 15, 25},
		{"tgtid", 4, 14},
		{"txnid", 26, 37},
		{"opcode", 62, 68},
		{"lpid", 86, 90},
		{"mpam", 99, 109},
		{"addr", 110, 161},
		{"cycle", 176, 191},
	}
	rspFields = []Field{
		{"srcid", 15, 25},
		{"tgtid", 4, 14},
		{"txnid", 26, 37},
		{"opcode", 38, 42},
		{"dbid", 54, 65},
		{"cbusy", 51, 53},
		{"cycle", 176, 191},
	}
	snpFields = []Field{
		{"srcid", 4, 14},
		{"fwdnid", 27, 37},
		{"txnid", 15, 26},
		{"opcode", 50, 54},
		{"mpam", 59, 69},
		{"addr", 70, 118},
		{"cycle", 176, 191},
	}
	datFields = []Field{
		{"srcid", 15, 25},
		{"tgtid", 4, 14},
		{"txnid", 26, 37},
		{"opcode", 49, 52},
		{"homenid", 38, 48},
		{"dbid", 65, 76},
		{"resp", 55, 57},
		{"datasrc", 58, 61}, // datasrc|fwdstate|stash
		{"cbusy", 62, 64},
		{"cycle", 176, 191},
	}
)

// Fields returns the flit layout for a channel.
func Fields(channel string) []Field {
	switch channel {
	case "req":
		return reqFields
	case "rsp":
		return rspFields
	case "snp":
		return snpFields
	case "dat":
		return datFields
	}
	log.Fatalf("flit: unknown channel %q", channel)
	return nil
}

// Decode extracts every field of the channel's flit layout from p, in
// table order.
func Decode(p Packet, fields []Field) []uint64 {
	vals := make([]uint64, len(fields))
	for i, f := range fields {
		vals[i] = p.Bits(f.Lo, f.Hi)
	}
	return vals
}
