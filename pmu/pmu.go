package pmu

import (
	"fmt"
	"log"

	"github.com/lprylli/cmnperf/mesh"
)

type meshXP struct{ mesh, xp int }
type meshDomain struct{ mesh, domain int }

// PMU tracks every mesh, DTM and DTC touched by the configured events so
// that they can be enabled and reset as a unit.
type PMU struct {
	openDrv func(meshID int) mesh.Driver
	trace   bool

	meshes map[int]*mesh.Mesh
	dtms   map[meshXP]*DTM
	dtcs   map[meshDomain]*DTC
}

// New returns a PMU in counting (trace=false) or tracing mode. openDrv
// opens the register space of a mesh on first use.
func New(openDrv func(meshID int) mesh.Driver, trace bool) *PMU {
	return &PMU{
		openDrv: openDrv,
		trace:   trace,
		meshes:  make(map[int]*mesh.Mesh),
		dtms:    make(map[meshXP]*DTM),
		dtcs:    make(map[meshDomain]*DTC),
	}
}

// Mesh probes a mesh on first use.
func (p *PMU) Mesh(meshID int) *mesh.Mesh {
	m, ok := p.meshes[meshID]
	if !ok {
		m = mesh.New(p.openDrv(meshID))
		p.meshes[meshID] = m
		log.Printf("cmn%d probed", meshID)
	}
	return m
}

func (p *PMU) dtcFor(meshID, domain int) (*DTC, error) {
	key := meshDomain{meshID, domain}
	if dtc, ok := p.dtcs[key]; ok {
		return dtc, nil
	}
	m := p.Mesh(meshID)
	if domain >= len(m.DTCs) {
		return nil, fmt.Errorf("cmn%d has no DTC domain %d", meshID, domain)
	}
	dtc := &DTC{Node: m.DTCs[domain]}
	p.dtcs[key] = dtc
	return dtc, nil
}

// DTMFor returns the debug/trace monitor of a cross point, probing the
// mesh and the DTC domain as needed.
func (p *PMU) DTMFor(meshID, xpNodeID int) (*DTM, error) {
	key := meshXP{meshID, xpNodeID}
	if dtm, ok := p.dtms[key]; ok {
		return dtm, nil
	}
	m := p.Mesh(meshID)
	xp, ok := m.XPByID[xpNodeID]
	if !ok {
		return nil, fmt.Errorf("cmn%d has no XP with node id %d", meshID, xpNodeID)
	}
	dtc, err := p.dtcFor(meshID, xp.DTCDomain)
	if err != nil {
		return nil, err
	}
	// domain 0 must exist even when unused: it gates enabling
	if _, err := p.dtcFor(meshID, 0); err != nil {
		return nil, err
	}
	dtm, err := newDTM(m.Root, xp, dtc)
	if err != nil {
		return nil, err
	}
	p.dtms[key] = dtm
	return dtm, nil
}

// Configure claims and programs watchpoints and counters for all events.
func (p *PMU) Configure(events []*Event) error {
	for _, ev := range events {
		dtm, err := p.DTMFor(ev.Mesh, ev.XP)
		if err != nil {
			return err
		}
		if err := dtm.Configure(ev, p.trace); err != nil {
			return err
		}
	}
	for _, dtc := range p.dtcs {
		dtc.Configure(p.trace)
	}
	return nil
}

// Enable starts all monitors, then the domain-0 controllers.
func (p *PMU) Enable() {
	for _, dtm := range p.dtms {
		dtm.Enable(p.trace)
	}
	for _, dtc := range p.dtcs {
		dtc.Enable0(p.trace)
	}
}

// Reset stops and clears every DTM and DTC of every probed mesh,
// including state left behind by earlier runs.
func (p *PMU) Reset() {
	for _, m := range p.meshes {
		for _, dtc := range m.DTCs {
			dtc.Reset()
		}
		for _, col := range m.Root.XPs {
			for _, xp := range col {
				xp.Reset()
			}
		}
	}
}

// Count is one snapshot result.
type Count struct {
	Name  string
	Value uint64
}

// Snapshot triggers a PMU snapshot and collects the counter of every
// event. Counters are cleared by the snapshot (cntr_rst).
func (p *PMU) Snapshot(events []*Event) []Count {
	for _, dtc := range p.dtcs {
		if dtc.Node.Domain == 0 {
			dtc.Node.WriteOff(dtPmsrr, 1) // ss_req
		}
	}
	counts := make([]Count, len(events))
	for i, ev := range events {
		counts[i] = Count{Name: ev.Name, Value: ev.dtm.readCounter(ev.wpIndex, ev.dtcCounter)}
	}
	return counts
}

// PollTrace drains ready FIFO entries into the event packet buffers. One
// call checks each event's watchpoint once.
func (p *PMU) PollTrace(events []*Event) {
	for _, ev := range events {
		xp := ev.dtm.XP
		ready := xp.ReadOff(dtmFifoReady)
		if ready.Bit(uint(ev.wpIndex)) == 0 {
			continue
		}
		base := uint64(dtmFifoEntry) + uint64(ev.wpIndex)*fifoEntryStride
		ev.Packets.Append(
			uint64(xp.ReadOff(base)),
			uint64(xp.ReadOff(base+8)),
			uint64(xp.ReadOff(base+16)),
		)
		xp.WriteOff(dtmFifoReady, 1<<uint(ev.wpIndex))
	}
}
