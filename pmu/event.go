// Package pmu programs the CMN debug/trace hardware: DTM watchpoints on
// the cross points and DTC counters, for event counting and flit tracing.
package pmu

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lprylli/cmnperf/flit"
)

var chnSel = map[string]int{"req": 0, "rsp": 1, "snp": 2, "dat": 3}

// Event is one watchpoint event, parsed from a spec like
//
//	cmn0/xp=8,port=1,up,group=0,channel=req,opcode=readnosnp/
type Event struct {
	Name    string
	Mesh    int
	XP      int // cross point node id
	Port    int
	Group   int
	Channel string
	ChnSel  int
	Up      bool
	Matches []flit.Match
	WpVal   uint64
	WpMask  uint64

	// assigned during Configure
	dtm        *DTM
	wpIndex    int
	dtcCounter int

	// trace mode capture buffer
	Packets *PacketBuffer
}

var (
	eventListRe = regexp.MustCompile(`^(?i)(cmn\d+/[^/]*/)(,cmn\d+/[^/]*/)*$`)
	eventRe     = regexp.MustCompile(`(?i)cmn\d+/[^/]+/`)
)

// ParseEvents expands and parses -e arguments. A single argument may name
// several events: cmn0/xp=8,.../,cmn1/xp=0,.../
func ParseEvents(specs []string) ([]*Event, error) {
	var events []*Event
	for _, spec := range specs {
		if !eventListRe.MatchString(spec) {
			return nil, fmt.Errorf("invalid event %q", spec)
		}
		for _, one := range eventRe.FindAllString(spec, -1) {
			ev, err := parseEvent(one)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", one, err)
			}
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no valid event found")
	}
	return events, nil
}

func parseEvent(spec string) (*Event, error) {
	spec = strings.ToLower(spec)
	parts := strings.Split(strings.Trim(spec, "/"), "/")
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "cmn") {
		return nil, fmt.Errorf("expected cmnN/.../")
	}
	meshID, err := strconv.Atoi(parts[0][3:])
	if err != nil || meshID < 0 {
		return nil, fmt.Errorf("bad mesh id %q", parts[0])
	}
	ev := &Event{Mesh: meshID, XP: -1, Port: -1, Group: -1}
	var channel, direction string
	for _, item := range strings.Split(parts[1], ",") {
		key, value, hasEq := strings.Cut(item, "=")
		switch {
		case hasEq && key == "xp":
			if ev.XP >= 0 {
				return nil, fmt.Errorf("duplicated xp=n")
			}
			if ev.XP, err = parseInt(value); err != nil {
				return nil, err
			}
		case hasEq && key == "port":
			if ev.Port >= 0 {
				return nil, fmt.Errorf("duplicated port=n")
			}
			if ev.Port, err = parseInt(value); err != nil {
				return nil, err
			}
		case hasEq && key == "group":
			if ev.Group >= 0 {
				return nil, fmt.Errorf("duplicated group=n")
			}
			if ev.Group, err = parseInt(value); err != nil {
				return nil, err
			}
		case hasEq && key == "channel":
			if channel != "" {
				return nil, fmt.Errorf("duplicated channel=v")
			}
			if _, ok := chnSel[value]; !ok {
				return nil, fmt.Errorf("invalid channel %q, must be req|rsp|snp|dat", value)
			}
			channel = value
		case hasEq:
			for _, m := range ev.Matches {
				if m.Field == key {
					return nil, fmt.Errorf("duplicated %s=v", key)
				}
			}
			ev.Matches = append(ev.Matches, flit.Match{Field: key, Value: value})
		case item == "up" || item == "down":
			if direction != "" {
				return nil, fmt.Errorf("duplicated up|down")
			}
			direction = item
		default:
			return nil, fmt.Errorf("invalid item %q", item)
		}
	}
	switch {
	case ev.XP < 0:
		return nil, fmt.Errorf("missing xp=nid")
	case ev.Port < 0:
		return nil, fmt.Errorf("missing port=n")
	case channel == "":
		return nil, fmt.Errorf("missing channel=req|rsp|snp|dat")
	case direction == "":
		return nil, fmt.Errorf("missing up|down")
	case ev.Port >= 6:
		return nil, fmt.Errorf("port %d out of range", ev.Port)
	}
	if ev.Group < 0 {
		ev.Group = 0
	} else if ev.Group >= 3 {
		return nil, fmt.Errorf("group %d out of range", ev.Group)
	}
	ev.Channel = channel
	ev.ChnSel = chnSel[channel]
	ev.Up = direction == "up"
	if ev.Up && ev.matchField("srcid") {
		return nil, fmt.Errorf("only download watchpoints support srcid")
	}
	if !ev.Up && ev.matchField("tgtid") {
		return nil, fmt.Errorf("only upload watchpoints support tgtid")
	}
	if ev.WpVal, ev.WpMask, err = flit.WpValMask(channel, ev.Group, ev.Matches); err != nil {
		return nil, err
	}
	ev.Name = ev.buildName(direction)
	return ev, nil
}

func (ev *Event) matchField(field string) bool {
	for _, m := range ev.Matches {
		if m.Field == field {
			return true
		}
	}
	return false
}

// cmn0-xp8-port1-up-grp0-req-readnosnp-tgtid100
func (ev *Event) buildName(direction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cmn%d-xp%d-port%d-%s-grp%d-%s-",
		ev.Mesh, ev.XP, ev.Port, direction, ev.Group, ev.Channel)
	opcode := "all"
	for _, m := range ev.Matches {
		if m.Field == "opcode" {
			opcode = m.Value
		}
	}
	b.WriteString(opcode)
	for _, m := range ev.Matches {
		if m.Field != "opcode" {
			fmt.Fprintf(&b, "-%s%s", m.Field, m.Value)
		}
	}
	return b.String()
}

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return int(v), nil
}
