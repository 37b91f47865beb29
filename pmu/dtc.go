package pmu

import (
	"fmt"

	"github.com/lprylli/cmnperf/mesh"
)

// DTC wraps a debug/trace controller node and allocates its eight global
// PMU counters.
type DTC struct {
	Node *mesh.DTC

	activeCounters int
}

func (c *DTC) nextCounter() (int, error) {
	if c.activeCounters >= 8 {
		return 0, fmt.Errorf("no DTC counter available on domain %d", c.Node.Domain)
	}
	idx := c.activeCounters
	c.activeCounters++
	return idx, nil
}

// Configure prepares the controller before enabling. In counting mode the
// counters are cleared on every snapshot; in trace mode cycle counts are
// put into trace packets.
func (c *DTC) Configure(trace bool) {
	if trace {
		ctl := c.Node.ReadOff(dtTraceCtl)
		c.Node.WriteOff(dtTraceCtl, uint64(ctl.SetBit(8, 1))) // cc_enable
		return
	}
	pmcr := c.Node.ReadOff(dtPmcr)
	c.Node.WriteOff(dtPmcr, uint64(pmcr.SetBit(5, 1))) // cntr_rst
}

// Enable0 turns the debug/trace infrastructure on. It only acts on DTC
// domain 0, which gates all other domains.
func (c *DTC) Enable0(trace bool) {
	if c.Node.Domain != 0 {
		return
	}
	if !trace {
		pmcr := c.Node.ReadOff(dtPmcr)
		if pmcr.Bit(0) == 0 {
			c.Node.WriteOff(dtPmcr, uint64(pmcr.SetBit(0, 1))) // pmu_en
		}
	}
	ctl := c.Node.ReadOff(dtDtcCtl)
	if ctl.Bit(0) == 0 {
		c.Node.WriteOff(dtDtcCtl, uint64(ctl.SetBit(0, 1))) // dt_en
	}
}
