// Package mesh probes the node hierarchy of an ARM CMN mesh: the CFG root
// node, the MXP cross points with their ports and attached devices, and
// the DTC debug/trace controllers.
package mesh

import (
	"log"
	"math/bits"
	"sort"
)

// Verbose enables probe-time debug output.
var Verbose bool

func debugf(format string, args ...interface{}) {
	if Verbose {
		log.Printf(format, args...)
	}
}

// por_xxx_node_info node types
const (
	typeDVM  = 0x0001
	typeCFG  = 0x0002
	typeDTC  = 0x0003
	typeMXP  = 0x0006
)

var nodeTypeNames = map[uint64]string{
	0x0001: "DVM",
	0x0002: "CFG",
	0x0003: "DTC",
	0x0004: "HN-I",
	0x0005: "HN-F",
	0x0006: "XP",
	0x0007: "SBSX",
	0x0008: "HN-F_MPAM_S",
	0x0009: "HN-F_MPAM_NS",
	0x000A: "RN-I",
	0x000D: "RN-D",
	0x000F: "RN-SAM",
	0x0011: "HN-P", // no document
	0x0103: "CCG_RA",
	0x0104: "CCG_HA",
	0x0105: "CCLA",
	0x0106: "CCLA_RNI", // no document
	0x1000: "APB",
}

// por_mxp_device_port_connect_info_p0-5 device types
var deviceTypeNames = [32]string{
	"Reserved", "RN-I", "RN-D", "Reserved",
	"RN-F_CHIB", "RN-F_CHIB_ESAM", "RN-F_CHIA", "RN-F_CHIA_ESAM",
	"HN-T", "HN-I", "HN-D", "HN-P",
	"SN-F_CHIC", "SBSX", "HN-F", "SN-F_CHIE",
	"SN-F_CHID", "CXHA", "CXRA", "CXRH",
	"RN-F_CHID", "RN-F_CHID_ESAM", "RN-F_CHIC", "RN-F_CHIC_ESAM",
	"RN-F_CHIE", "RN-F_CHIE_ESAM", "Reserved", "Reserved",
	"MTSX", "HN-V", "CCG", "Reserved",
}

// Node is the part common to every CMN node: identity from
// por_xxx_node_info and the child list from por_xxx_child_info.
type Node struct {
	Type      string
	NodeID    int
	LogicalID int
	P, D      int // port/device within the parent cross point

	drv            Driver
	regBase        uint64
	childCount     uint64
	childPtrOffset uint64
}

func newNode(drv Driver, info Register, regBase uint64) Node {
	n := Node{
		Type:    nodeTypeNames[info.Bits(0, 15)],
		NodeID:  int(info.Bits(16, 31)),
		drv:     drv,
		regBase: regBase,
	}
	if n.NodeID >= 4096 {
		log.Fatalf("mesh: node id %d out of range", n.NodeID)
	}
	n.LogicalID = int(info.Bits(32, 47))
	childInfo := n.ReadOff(0x80)
	n.childCount = childInfo.Bits(0, 15)
	n.childPtrOffset = childInfo.Bits(16, 31)
	return n
}

// ReadOff reads a register at an offset within this node's register space.
func (n *Node) ReadOff(reg uint64) Register {
	return n.drv.Read(n.regBase + reg)
}

// WriteOff writes a register at an offset within this node's register space.
func (n *Node) WriteOff(reg uint64, val uint64) {
	n.drv.Write(n.regBase+reg, val)
}

// extract port/device number from the node id, not used by CFG and MXP
func (n *Node) updatePortDevice(portCount int) {
	pd := n.NodeID & 7
	if portCount <= 2 {
		n.P, n.D = pd>>2, pd&3
	} else {
		n.P, n.D = pd>>1, pd&1
	}
}

// PortDev describes one MXP port: the connected device type and how many
// devices sit behind it (possibly zero).
type PortDev struct {
	Type     string
	DevCount int
}

// PortDevice addresses one device on one port.
type PortDevice struct{ P, D int }

// MXP is a mesh cross point.
type MXP struct {
	Node
	X, Y      int
	DTCDomain int
	PortDevs  []PortDev
	// Children maps a port/device to its child nodes. A single device can
	// own several nodes (an HN-F also carries HN-F_MPAM_S/NS); SN-F and
	// RN-F devices may have none.
	Children map[PortDevice][]*Node

	childNodes []*Node
}

func newMXP(drv Driver, info Register, regBase uint64) *MXP {
	debugf("probing cross point ...")
	xp := &MXP{Node: newNode(drv, info, regBase)}
	// lowest 3 bits (port, device) of an XP node id must be 0
	if xp.NodeID&7 != 0 {
		log.Fatalf("mesh: XP node id %d has port/device bits set", xp.NodeID)
	}
	debugf("nodeid = %d", xp.NodeID)
	portCount := int(info.Bits(48, 51))
	debugf("ports = %d", portCount)
	// por_dtm_unit_info
	xp.DTCDomain = int(xp.ReadOff(0x960).Bits(0, 1))
	debugf("dtc = %d", xp.DTCDomain)
	xp.PortDevs = xp.probePorts(portCount)
	xp.childNodes = xp.probeDevices()
	return xp
}

func (xp *MXP) probePorts(portCount int) []PortDev {
	var portDevs []PortDev
	for i := 0; i < portCount; i++ {
		// por_mxp_device_port_connect_info_p0-5
		connInfo := xp.ReadOff(8 + uint64(i)*8)
		devType := deviceTypeNames[connInfo.Bits(0, 4)]
		// por_mxp_p0-5_info
		portInfo := xp.ReadOff(0x900 + uint64(i)*16)
		devCount := int(portInfo.Bits(0, 2))
		portDevs = append(portDevs, PortDev{Type: devType, DevCount: devCount})
		if devCount > 0 {
			debugf("p%d: %s, %d", i, devType, devCount)
		}
	}
	return portDevs
}

func (xp *MXP) probeDevices() []*Node {
	debugf("childs = %d", xp.childCount)
	var nodes []*Node
	for i := uint64(0); i < xp.childCount; i++ {
		childPtr := xp.ReadOff(xp.childPtrOffset + i*8)
		devNodeOffset := childPtr.Bits(0, 29)
		if childPtr.Bit(31) != 0 {
			log.Printf("XP%d: ignore external node", xp.NodeID)
			continue
		}
		devNodeInfo := xp.drv.Read(devNodeOffset)
		devNodeType := devNodeInfo.Bits(0, 15)
		if _, ok := nodeTypeNames[devNodeType]; !ok {
			log.Printf("XP%d: ignore unknown node type %#04x", xp.NodeID, devNodeType)
			continue
		}
		node := newNode(xp.drv, devNodeInfo, devNodeOffset)
		if devNodeType == typeDTC {
			// domain lives in the low logical id bits
			node.Type = "DTC"
		}
		nodes = append(nodes, &node)
	}
	return nodes
}

// update computes the mesh coordinate of the cross point and the
// port/device number of every child, then indexes children by (p, d).
func (xp *MXP) update(xdim, ydim int) {
	debugf("updating cross point %d ...", xp.NodeID)
	max := xdim
	if ydim > max {
		max = ydim
	}
	xshift := bits.Len(uint(max - 1))
	if xshift < 2 {
		xshift = 2
	}
	xyID := xp.NodeID >> 3
	xp.X = xyID >> uint(xshift)
	xp.Y = xyID & ((1 << uint(xshift)) - 1)
	debugf("x = %d, y = %d", xp.X, xp.Y)
	for _, node := range xp.childNodes {
		node.updatePortDevice(len(xp.PortDevs))
	}
	xp.Children = make(map[PortDevice][]*Node)
	for p, pd := range xp.PortDevs {
		for d := 0; d < pd.DevCount; d++ {
			xp.Children[PortDevice{p, d}] = nil
		}
	}
	for _, node := range xp.childNodes {
		key := PortDevice{node.P, node.D}
		if _, ok := xp.Children[key]; !ok {
			debugf("ignore out of bound child node at XP%d port%d device%d %s",
				xp.NodeID, node.P, node.D, node.Type)
			continue
		}
		xp.Children[key] = append(xp.Children[key], node)
	}
}

// DevNodeID computes the node id of the device at port p, device d.
func (xp *MXP) DevNodeID(p, d int) int {
	var nodeID int
	if len(xp.PortDevs) <= 2 {
		if p < 0 || p > 1 || d < 0 || d > 3 {
			log.Fatalf("mesh: XP%d has no port%d/device%d", xp.NodeID, p, d)
		}
		nodeID = p<<2 | d
	} else {
		if p < 0 || p > 3 || d < 0 || d > 1 {
			log.Fatalf("mesh: XP%d has no port%d/device%d", xp.NodeID, p, d)
		}
		nodeID = p<<1 | d
	}
	nodeID += xp.NodeID
	// SN-F and RN-F devices may carry no child node to verify against
	if children := xp.Children[PortDevice{p, d}]; len(children) > 0 &&
		children[0].NodeID != nodeID {
		log.Fatalf("mesh: XP%d port%d device%d: node id %d != %d",
			xp.NodeID, p, d, children[0].NodeID, nodeID)
	}
	return nodeID
}

// Reset stops the DTM and clears its watchpoint and counter registers.
func (xp *MXP) Reset() {
	zeroRegs := []uint64{
		0x2100,                         // por_dtm_control (stop dt)
		0x2210,                         // por_dtm_pmu_config
		0x2000,                         // por_mxp_pmu_event_sel
		0x21A0, 0x21B8, 0x21D0, 0x21E8, // por_dtm_wp0-3_config
		0x21A8, 0x21C0, 0x21D8, 0x21F0, // por_dtm_wp0-3_val
		0x21B0, 0x21C8, 0x21E0, 0x21F8, // por_dtm_wp0-3_mask
		0x2220, // por_dtm_pmevcnt
		0x2240, // por_dtm_pmevcntsr
	}
	for _, reg := range zeroRegs {
		xp.WriteOff(reg, 0)
	}
	// clear por_dtm_fifo_entry_ready
	xp.WriteOff(0x2118, 0b1111)
}

// DTC is a debug/trace controller node (one per DTC domain).
type DTC struct {
	Node
	Domain int
}

// Reset stops the DTC and clears its counters and trace control.
func (c *DTC) Reset() {
	zeroRegs := []uint64{
		0x0A00,                         // por_dt_dtc_ctl (stop dt)
		0x2100,                         // por_dt_pmcr    (stop pmu)
		0x0A30,                         // por_dt_trace_control
		0x2000, 0x2010, 0x2020, 0x2030, // por_dt_pmevcntAB-GH
		0x2040,                         // por_dt_pmccntr
		0x2050, 0x2060, 0x2070, 0x2080, // por_dt_pmevcntsrAB-GH
		0x2090, // por_dt_pmccntrsr
	}
	for _, reg := range zeroRegs {
		c.WriteOff(reg, 0)
	}
	// set por_dt_pmovsr_clr[8:0] to clear counter overflow status
	c.WriteOff(0x2210, 0b1_1111_1111)
}

// CFG is the root configuration node.
type CFG struct {
	Node
	// XPs[x][y] is the cross point at mesh coordinate (x, y).
	XPs      [][]*MXP
	MultiDTM bool
}

// Mesh is a probed CMN mesh.
type Mesh struct {
	Root *CFG
	// XPByID maps a cross point node id to the cross point.
	XPByID map[int]*MXP
	// DTCs holds the DTC nodes indexed by DTC domain.
	DTCs []*DTC

	drv Driver
}

// New probes the mesh reachable through drv, starting at the CFG root
// node at offset 0.
func New(drv Driver) *Mesh {
	info := drv.Read(0)
	if info.Bits(0, 15) != typeCFG {
		log.Fatalf("mesh: root node type %#04x is not CFG", info.Bits(0, 15))
	}
	m := &Mesh{drv: drv}
	root := &CFG{Node: newNode(drv, info, 0)}
	xps := root.probeXPs(drv)
	root.XPs = xpGrid(xps)
	// por_info_global[63]
	root.MultiDTM = root.ReadOff(0x900).Bit(63) != 0
	if root.MultiDTM {
		log.Printf("mesh: detected multiple dtm, unsupported")
	}
	m.Root = root
	m.XPByID = make(map[int]*MXP, len(xps))
	for _, xp := range xps {
		m.XPByID[xp.NodeID] = xp
	}
	m.DTCs = dtcList(root)
	return m
}

func (cfg *CFG) probeXPs(drv Driver) []*MXP {
	debugf("found %d cross points", cfg.childCount)
	var xps []*MXP
	for i := uint64(0); i < cfg.childCount; i++ {
		childPtr := cfg.ReadOff(cfg.childPtrOffset + i*8)
		xpNodeOffset := childPtr.Bits(0, 29)
		if childPtr.Bit(31) != 0 {
			log.Printf("mesh: ignore external node from root")
			continue
		}
		xpNodeInfo := drv.Read(xpNodeOffset)
		if xpNodeInfo.Bits(0, 15) != typeMXP {
			log.Fatalf("mesh: child %d of root is not an XP", i)
		}
		xps = append(xps, newMXP(drv, xpNodeInfo, xpNodeOffset))
	}
	return xps
}

// xpGrid arranges the cross points into a 2D array by mesh coordinate.
func xpGrid(xps []*MXP) [][]*MXP {
	// dirty knowledge from the linux arm-cmn driver:
	// - x-dim = xp.logical_id of the xp with node id 8
	// - x-dim = 1 if no such xp exists
	xdim := 1
	for _, xp := range xps {
		if xp.NodeID == 8 {
			xdim = xp.LogicalID
			break
		}
	}
	if xdim < 1 || xdim > 16 || len(xps)%xdim != 0 {
		log.Fatalf("mesh: bad x dimension %d for %d cross points", xdim, len(xps))
	}
	ydim := len(xps) / xdim
	if ydim < 1 || ydim > 16 {
		log.Fatalf("mesh: bad y dimension %d", ydim)
	}
	debugf("dimension: x = %d, y = %d", xdim, ydim)
	grid := make([][]*MXP, xdim)
	for x := range grid {
		grid[x] = make([]*MXP, ydim)
	}
	for _, xp := range xps {
		xp.update(xdim, ydim)
		if xp.X >= xdim || xp.Y >= ydim {
			log.Fatalf("mesh: XP%d coordinate (%d, %d) outside %dx%d mesh",
				xp.NodeID, xp.X, xp.Y, xdim, ydim)
		}
		grid[xp.X][xp.Y] = xp
	}
	return grid
}

func dtcList(root *CFG) []*DTC {
	var dtcs []*DTC
	maxDomain := -1
	for _, col := range root.XPs {
		for _, xp := range col {
			if xp.DTCDomain > maxDomain {
				maxDomain = xp.DTCDomain
			}
			for _, nodes := range xp.Children {
				for _, node := range nodes {
					if node.Type != "DTC" {
						continue
					}
					// por_dt_node_info[33:32]
					dtcs = append(dtcs, &DTC{Node: *node, Domain: node.LogicalID & 3})
				}
			}
		}
	}
	if maxDomain+1 != len(dtcs) {
		log.Fatalf("mesh: %d DTC nodes found for %d DTC domains", len(dtcs), maxDomain+1)
	}
	sort.Slice(dtcs, func(i, j int) bool { return dtcs[i].Domain < dtcs[j].Domain })
	return dtcs
}
