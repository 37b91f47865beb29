package pmu

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lprylli/cmnperf/mesh"
)

// DTM is the debug/trace monitor of one cross point: four watchpoints
// (0,1 upload, 2,3 download) and four 16-bit event counters.
type DTM struct {
	XP  *mesh.MXP
	DTC *DTC

	wpInUse [4]bool
}

func newDTM(root *mesh.CFG, xp *mesh.MXP, dtc *DTC) (*DTM, error) {
	if root.MultiDTM && len(xp.PortDevs) > 2 {
		return nil, errors.New("multiple DTM unsupported")
	}
	return &DTM{XP: xp, DTC: dtc}, nil
}

func (m *DTM) claimWatchpoint(up bool) (int, error) {
	wp := 0
	if !up {
		wp = 2
	}
	if m.wpInUse[wp] {
		wp++
	}
	if m.wpInUse[wp] {
		return 0, fmt.Errorf("no watchpoint available on XP%d", m.XP.NodeID)
	}
	m.wpInUse[wp] = true
	return wp, nil
}

// Configure programs a watchpoint for the event. In counting mode the
// watchpoint drives a DTM counter paired with a 32-bit DTC counter; in
// trace mode it generates control flit packets into the DTM FIFO.
func (m *DTM) Configure(ev *Event, trace bool) error {
	wp, err := m.claimWatchpoint(ev.Up)
	if err != nil {
		return err
	}
	if ev.Port >= len(m.XP.PortDevs) {
		return fmt.Errorf("XP%d has no port %d", m.XP.NodeID, ev.Port)
	}
	// program por_dtm_wp0-3_val/mask
	m.XP.WriteOff(dtmWpVal+uint64(wp)*wpStride, ev.WpVal)
	m.XP.WriteOff(dtmWpMask+uint64(wp)*wpStride, ev.WpMask)
	// program por_dtm_wp0-3_config
	cfg := m.XP.ReadOff(dtmWpConfig + uint64(wp)*wpStride)
	cfg = cfg.SetBits(1, 3, uint64(ev.ChnSel))      // wp_chn_sel
	cfg = cfg.SetBit(0, uint64(ev.Port&1))          // wp_dev_sel
	cfg = cfg.SetBits(17, 18, uint64(ev.Port)>>1)   // wp_dev_sel2
	cfg = cfg.SetBits(4, 5, uint64(ev.Group))       // wp_grp
	if trace {
		cfg = cfg.SetBit(10, 1)          // wp_pkt_gen
		cfg = cfg.SetBits(11, 13, 0b100) // wp_pkt_type: control flit
		cfg = cfg.SetBit(14, 1)          // wp_cc_en
	}
	m.XP.WriteOff(dtmWpConfig+uint64(wp)*wpStride, uint64(cfg))

	if trace {
		// route trace packets to the FIFO instead of the ATB
		ctl := m.XP.ReadOff(dtmControl)
		m.XP.WriteOff(dtmControl, uint64(ctl.SetBit(3, 1))) // trace_no_atb
		ev.dtm, ev.wpIndex = m, wp
		ev.Packets = NewPacketBuffer()
		return nil
	}

	// pair the 16-bit DTM counter with a 32-bit DTC counter for 48 bits
	pmuCfg := m.XP.ReadOff(dtmPmuConfig)
	pmuCfg = pmuCfg.SetBits(uint(32+wp*8), uint(39+wp*8), uint64(wp)) // pmevcntN_input_sel
	paired := pmuCfg.Bits(4, 7)
	pmuCfg = pmuCfg.SetBits(4, 7, paired|1<<uint(wp)) // pmevcnt_paired
	counter, err := m.DTC.nextCounter()
	if err != nil {
		return err
	}
	pmuCfg = pmuCfg.SetBits(uint(16+wp*4), uint(18+wp*4), uint64(counter)) // pmevcntN_global_num
	pmuCfg = pmuCfg.SetBit(8, 1)                                          // cntr_rst: clear on snapshot
	m.XP.WriteOff(dtmPmuConfig, uint64(pmuCfg))
	ev.dtm, ev.wpIndex, ev.dtcCounter = m, wp, counter
	return nil
}

// Enable starts the monitor. Setting dtm_enable must come last: DTM
// registers are read-only once it is set.
func (m *DTM) Enable(trace bool) {
	if !trace {
		pmuCfg := m.XP.ReadOff(dtmPmuConfig)
		if pmuCfg.Bit(0) == 0 {
			m.XP.WriteOff(dtmPmuConfig, uint64(pmuCfg.SetBit(0, 1))) // pmu_en
		}
	}
	ctl := m.XP.ReadOff(dtmControl)
	if ctl.Bit(0) == 0 {
		m.XP.WriteOff(dtmControl, uint64(ctl.SetBit(0, 1))) // dtm_enable
	}
}

// EnableTracetag makes this DTM's watchpoints tag matched flits so that
// downstream watchpoints trace the whole transaction.
func (m *DTM) EnableTracetag() {
	ctl := m.XP.ReadOff(dtmControl)
	m.XP.WriteOff(dtmControl, uint64(ctl.SetBit(1, 1))) // trace_tag_enable
}

var errSnapshotPending = errors.New("snapshot pending")

// readCounter waits for the snapshot shadow registers and combines the
// 16-bit DTM counter with its paired 32-bit DTC counter.
func (m *DTM) readCounter(wp, dtcCounter int) uint64 {
	poll := func() error {
		ssStatus := m.DTC.Node.ReadOff(dtPmssr).Bits(0, 8)
		if ssStatus&(1<<uint(dtcCounter)) == 0 {
			return errSnapshotPending
		}
		return nil
	}
	wait := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 100)
	if err := backoff.Retry(poll, wait); err != nil {
		log.Fatalf("pmu: timeout waiting for DTC snapshot: %s", err)
	}
	dtmCounter := m.XP.ReadOff(dtmPmevcntsr).Bits(uint(wp*16), uint(wp*16+15))
	// counter pairs share one shadow register: 0,1 -> 0x2050, 2,3 -> 0x2060 ...
	reg := uint64(dtPmevcntsr) + uint64(dtcCounter/2)*16
	shadow := m.DTC.Node.ReadOff(reg)
	lo := uint(dtcCounter % 2 * 32)
	return shadow.Bits(lo, lo+31)<<16 | dtmCounter
}
