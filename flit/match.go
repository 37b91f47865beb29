package flit

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// CMN-700 tables. opcode700.csv maps channel opcodes to CHI command
// names; matchgrp700.csv gives the watchpoint bit range of every
// matchable flit field per channel and match group.
var (
	//go:embed opcode700.csv
	opcodeCSV string

	//go:embed matchgrp700.csv
	matchgrpCSV string
)

func readTable(data, name string) [][]string {
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	if err != nil {
		log.Fatalf("flit: parse %s: %s", name, err)
	}
	return rows[1:] // skip header
}

// OpcodeNames maps opcode numbers to command names for a channel.
func OpcodeNames(channel string) map[uint64]string {
	names := make(map[uint64]string)
	for _, row := range readTable(opcodeCSV, "opcode700.csv") {
		if row[0] != channel {
			continue
		}
		op, err := strconv.ParseUint(row[1], 0, 64)
		if err != nil {
			log.Fatalf("flit: opcode700.csv: bad opcode %q", row[1])
		}
		names[op] = row[2]
	}
	return names
}

// lookupOpcode resolves an opcode given either as a number or as a
// (case-insensitive) command name.
func lookupOpcode(channel, opcodeOrCmd string) (uint64, error) {
	wantNum, numErr := strconv.ParseUint(opcodeOrCmd, 0, 64)
	wantCmd := strings.ToLower(opcodeOrCmd)
	for op, cmd := range OpcodeNames(channel) {
		if (numErr == nil && op == wantNum) || strings.ToLower(cmd) == wantCmd {
			return op, nil
		}
	}
	return 0, fmt.Errorf("invalid opcode %q for channel %q", opcodeOrCmd, channel)
}

// fieldRange finds the watchpoint bit range of a field in a match group.
// Table rows may name field aliases separated by '|'.
func fieldRange(channel string, group int, field string) (lo, hi uint, err error) {
	for _, row := range readTable(matchgrpCSV, "matchgrp700.csv") {
		if row[0] != channel {
			continue
		}
		g, _ := strconv.Atoi(row[1])
		if g != group {
			continue
		}
		found := false
		for _, alias := range strings.Split(row[2], "|") {
			if alias == field {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		bounds := strings.Split(row[3], ":")
		l, err1 := strconv.ParseUint(bounds[0], 0, 8)
		h, err2 := strconv.ParseUint(bounds[1], 0, 8)
		if err1 != nil || err2 != nil || l > h || h > 63 {
			log.Fatalf("flit: matchgrp700.csv: bad bit range %q", row[3])
		}
		return uint(l), uint(h), nil
	}
	return 0, 0, fmt.Errorf("invalid field %q: channel=%s, group=%d", field, channel, group)
}

// Match is one field=value constraint of an event.
type Match struct {
	Field, Value string
}

// WpValMask folds a list of field matches into the watchpoint value and
// mask registers. Mask bits are set for flit bits the watchpoint must
// ignore, so an empty match list yields val=0, mask=^0 (match anything).
func WpValMask(channel string, group int, matches []Match) (val, mask uint64, err error) {
	for _, m := range matches {
		var fieldVal uint64
		if m.Field == "opcode" {
			fieldVal, err = lookupOpcode(channel, m.Value)
		} else {
			fieldVal, err = strconv.ParseUint(m.Value, 0, 64)
			if err != nil {
				err = fmt.Errorf("invalid value: %s=%s", m.Field, m.Value)
			}
		}
		if err != nil {
			return 0, 0, err
		}
		lo, hi, err := fieldRange(channel, group, m.Field)
		if err != nil {
			return 0, 0, err
		}
		if width := hi - lo + 1; width < 64 && fieldVal>>width != 0 {
			return 0, 0, fmt.Errorf("value out of bit range: %s=%s", m.Field, m.Value)
		}
		// shifting by hi+1 == 64 wraps to 0 and covers the top bit
		fieldMask := uint64(1)<<(hi+1) - uint64(1)<<lo
		if fieldMask&mask != 0 {
			return 0, 0, fmt.Errorf("overlapping match fields at %s", m.Field)
		}
		val |= fieldVal << lo
		mask |= fieldMask
	}
	return val, ^mask, nil
}
