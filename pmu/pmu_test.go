package pmu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lprylli/cmnperf/mesh"
	"github.com/lprylli/cmnperf/pmu"
)

type fakeDriver struct {
	regs map[uint64]uint64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{regs: make(map[uint64]uint64)}
}

func (f *fakeDriver) Read(reg uint64) mesh.Register { return mesh.Register(f.regs[reg]) }
func (f *fakeDriver) Write(reg uint64, val uint64)  { f.regs[reg] = val }

func nodeInfo(nodeType, nodeID, logicalID, portCount uint64) uint64 {
	return nodeType | nodeID<<16 | logicalID<<32 | portCount<<48
}

// buildMesh lays out a synthetic 2x2 mesh with a DTC under XP0 port 0 and
// an HN-F under XP0 port 1, in domain 0.
func buildMesh() *fakeDriver {
	d := newFakeDriver()
	r := d.regs

	r[0] = nodeInfo(0x0002, 0, 0, 0)
	r[0x80] = 4 | 0x100<<16
	r[0x100] = 0x10000
	r[0x108] = 0x20000
	r[0x110] = 0x30000
	r[0x118] = 0x40000

	xp := func(base, nodeID, logicalID, ports uint64) {
		r[base] = nodeInfo(0x0006, nodeID, logicalID, ports)
		r[base+0x960] = 0
		r[base+8] = 0b00110 // RN-F_CHIA
		r[base+0x900] = 1
	}

	xp(0x10000, 0, 0, 2)
	r[0x10000+0x80] = 1 | 0x200<<16
	r[0x10000+8] = 0b01010  // port0: HN-D
	r[0x10000+16] = 0b01110 // port1: HN-F
	r[0x10000+0x910] = 1
	r[0x10200] = 0x11000
	r[0x11000] = nodeInfo(0x0003, 0, 0, 0) // DTC, domain 0

	xp(0x20000, 8, 2, 1)
	xp(0x30000, 32, 1, 1)
	xp(0x40000, 40, 3, 1)
	return d
}

const (
	xpBase  = uint64(0x10000)
	dtcBase = uint64(0x11000)
)

func newPMU(d *fakeDriver, trace bool) *pmu.PMU {
	return pmu.New(func(meshID int) mesh.Driver { return d }, trace)
}

func TestConfigureStat(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, false)

	events, err := pmu.ParseEvents([]string{
		"cmn0/xp=0,port=1,up,channel=req,opcode=readnosnp/,cmn0/xp=0,port=0,down,channel=req/",
	})
	require.NoError(t, err)
	require.NoError(t, p.Configure(events))

	// up event claims wp0: val/mask from the opcode match, port 1 selected
	assert.Equal(t, uint64(0x04), d.regs[xpBase+0x21A8])
	assert.Equal(t, ^uint64(0x7F), d.regs[xpBase+0x21B0])
	wp0 := mesh.Register(d.regs[xpBase+0x21A0])
	assert.Equal(t, uint64(1), wp0.Bit(0), "wp_dev_sel port 1")
	assert.Equal(t, uint64(0), wp0.Bits(1, 3), "wp_chn_sel req")
	assert.Equal(t, uint64(0), wp0.Bits(17, 18))

	// down event claims wp2 on port 0, match-all
	assert.Equal(t, uint64(0), d.regs[xpBase+0x21D8])
	assert.Equal(t, ^uint64(0), d.regs[xpBase+0x21E0])
	wp2 := mesh.Register(d.regs[xpBase+0x21D0])
	assert.Equal(t, uint64(0), wp2.Bit(0))

	// counter pairing: wp0 -> DTC counter 0, wp2 -> DTC counter 1
	cfg := mesh.Register(d.regs[xpBase+0x2210])
	assert.Equal(t, uint64(0b0101), cfg.Bits(4, 7), "pmevcnt_paired")
	assert.Equal(t, uint64(0), cfg.Bits(16, 18), "wp0 global_num")
	assert.Equal(t, uint64(1), cfg.Bits(24, 26), "wp2 global_num")
	assert.Equal(t, uint64(0), cfg.Bits(32, 39), "wp0 input_sel")
	assert.Equal(t, uint64(2), cfg.Bits(48, 55), "wp2 input_sel")
	assert.Equal(t, uint64(1), cfg.Bit(8), "cntr_rst")

	// DTC pmcr cntr_rst set, nothing enabled yet
	assert.Equal(t, uint64(1<<5), d.regs[dtcBase+0x2100])
	assert.Zero(t, d.regs[dtcBase+0x0A00])

	p.Enable()
	assert.Equal(t, uint64(1), d.regs[xpBase+0x2100], "dtm_enable")
	assert.Equal(t, uint64(1), mesh.Register(d.regs[xpBase+0x2210]).Bit(0), "pmu_en")
	assert.Equal(t, uint64(1<<5|1), d.regs[dtcBase+0x2100], "dtc pmu_en")
	assert.Equal(t, uint64(1), d.regs[dtcBase+0x0A00], "dt_en")
}

func TestSnapshot(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, false)

	events, err := pmu.ParseEvents([]string{
		"cmn0/xp=0,port=1,up,channel=req/,cmn0/xp=0,port=0,down,channel=req/",
	})
	require.NoError(t, err)
	require.NoError(t, p.Configure(events))
	p.Enable()

	// snapshot shadow registers: 16-bit DTM halves paired with 32-bit DTC
	// halves, all counters already flagged ready
	d.regs[dtcBase+0x2128] = 0x1ff
	d.regs[xpBase+0x2240] = 0x1111 | 0x2222<<32
	d.regs[dtcBase+0x2050] = 0xAAAA | 0xBBBB<<32

	counts := p.Snapshot(events)
	assert.Equal(t, uint64(1), d.regs[dtcBase+0x2130], "ss_req")
	require.Len(t, counts, 2)
	assert.Equal(t, events[0].Name, counts[0].Name)
	assert.Equal(t, uint64(0xAAAA<<16|0x1111), counts[0].Value)
	assert.Equal(t, uint64(0xBBBB<<16|0x2222), counts[1].Value)
}

func TestWatchpointExhaustion(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, false)

	events, err := pmu.ParseEvents([]string{
		"cmn0/xp=8,port=0,up,channel=req/,cmn0/xp=8,port=0,up,channel=rsp/,cmn0/xp=8,port=0,up,channel=dat/",
	})
	require.NoError(t, err)
	err = p.Configure(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no watchpoint available")
}

func TestConfigureBadTarget(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, false)

	events, err := pmu.ParseEvents([]string{"cmn0/xp=99,port=0,up,channel=req/"})
	require.NoError(t, err)
	assert.Error(t, p.Configure(events), "no such cross point")

	events, err = pmu.ParseEvents([]string{"cmn0/xp=8,port=3,up,channel=req/"})
	require.NoError(t, err)
	assert.Error(t, p.Configure(events), "XP8 has a single port")
}

func TestConfigureTrace(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, true)

	events, err := pmu.ParseEvents([]string{"cmn0/xp=0,port=1,up,channel=req,opcode=readnosnp/"})
	require.NoError(t, err)
	require.NoError(t, p.Configure(events))

	wp0 := mesh.Register(d.regs[xpBase+0x21A0])
	assert.Equal(t, uint64(1), wp0.Bit(10), "wp_pkt_gen")
	assert.Equal(t, uint64(0b100), wp0.Bits(11, 13), "control flit packets")
	assert.Equal(t, uint64(1), wp0.Bit(14), "wp_cc_en")
	assert.Equal(t, uint64(1), mesh.Register(d.regs[xpBase+0x2100]).Bit(3), "trace_no_atb")
	assert.Equal(t, uint64(1), mesh.Register(d.regs[dtcBase+0x0A30]).Bit(8), "cc_enable")
	require.NotNil(t, events[0].Packets)

	// counting-only registers stay untouched in trace mode
	assert.Zero(t, d.regs[xpBase+0x2210])

	p.Enable()
	assert.Equal(t, uint64(1), mesh.Register(d.regs[xpBase+0x2100]).Bit(0), "dtm_enable")
	assert.Equal(t, uint64(1), d.regs[dtcBase+0x0A00], "dt_en")
	assert.Zero(t, d.regs[dtcBase+0x2100], "pmu stays off")
}

func TestPollTrace(t *testing.T) {
	d := buildMesh()
	p := newPMU(d, true)

	events, err := pmu.ParseEvents([]string{"cmn0/xp=0,port=1,up,channel=req/"})
	require.NoError(t, err)
	require.NoError(t, p.Configure(events))
	p.Enable()

	// one entry pending in the wp0 FIFO slot
	d.regs[xpBase+0x2118] = 0b0001
	d.regs[xpBase+0x2120] = 0x1111111111111111
	d.regs[xpBase+0x2128] = 0x2222222222222222
	d.regs[xpBase+0x2130] = 0x3333333333333333

	p.PollTrace(events)
	buf := events[0].Packets
	require.Equal(t, 1, buf.Len())
	pkt := buf.Packet(0)
	assert.Equal(t, uint64(0x1111111111111111), pkt[0])
	assert.Equal(t, uint64(0x2222222222222222), pkt[1])
	assert.Equal(t, uint64(0x3333333333333333), pkt[2])

	// nothing ready: no new packet
	d.regs[xpBase+0x2118] = 0
	p.PollTrace(events)
	assert.Equal(t, 1, buf.Len())
	buf.Release()
}
