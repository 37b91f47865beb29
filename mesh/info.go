package mesh

// Info mirrors the JSON layout produced by `cmnperf info`:
//
//	{
//	  "dim": {"x": 2, "y": 2},
//	  "xp": [[{...}, {...}], [{...}, {...}]]
//	}
type Info struct {
	Dim DimInfo    `json:"dim"`
	XPs [][]XPInfo `json:"xp"`
}

type DimInfo struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type XPInfo struct {
	X      int        `json:"x"`
	Y      int        `json:"y"`
	NodeID int        `json:"node_id"`
	Ports  []PortInfo `json:"ports"`
}

type PortInfo struct {
	Type    string       `json:"type"`
	Devices []DeviceInfo `json:"devices"`
}

type DeviceInfo struct {
	P      int `json:"p"`
	D      int `json:"d"`
	NodeID int `json:"node_id"`
}

// Info describes the probed mesh.
func (m *Mesh) Info() Info {
	xps := m.Root.XPs
	info := Info{Dim: DimInfo{X: len(xps), Y: len(xps[0])}}
	for _, col := range xps {
		var colInfo []XPInfo
		for _, xp := range col {
			xpInfo := XPInfo{
				X:      xp.X,
				Y:      xp.Y,
				NodeID: xp.NodeID,
				Ports:  []PortInfo{},
			}
			for p, pd := range xp.PortDevs {
				portInfo := PortInfo{Type: pd.Type, Devices: []DeviceInfo{}}
				for d := 0; d < pd.DevCount; d++ {
					portInfo.Devices = append(portInfo.Devices, DeviceInfo{
						P:      p,
						D:      d,
						NodeID: xp.DevNodeID(p, d),
					})
				}
				xpInfo.Ports = append(xpInfo.Ports, portInfo)
			}
			colInfo = append(colInfo, xpInfo)
		}
		info.XPs = append(info.XPs, colInfo)
	}
	return info
}
