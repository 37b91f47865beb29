// Package report renders captured trace logs to per-event CSV files.
package report

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/lprylli/cmnperf/flit"
	"github.com/lprylli/cmnperf/pmu"
)

// Options selects which trace log to render and how to sample it.
type Options struct {
	Input      string
	OutDir     string
	Sample     string // header, tail, evenly or random
	MaxRecords int    // <= 0 keeps every packet
	Verbose    bool
}

// Run loads a trace log and writes one CSV per event to OutDir, named
// <event>-<sample>.csv. Events render in parallel, one worker per event.
func Run(opt Options) error {
	events, err := pmu.LoadTrace(opt.Input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opt.OutDir, 0o755); err != nil {
		return err
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	errs := make(chan error, len(events))
	for _, ev := range events {
		ev := ev
		path := filepath.Join(opt.OutDir, fmt.Sprintf("%s-%s.csv", ev.Name, opt.Sample))
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			n, err := writeCSV(ev, path, opt.Sample, opt.MaxRecords)
			if err != nil {
				errs <- fmt.Errorf("%s: %w", ev.Name, err)
				return
			}
			log.Printf("report: %d records -> %s", n, path)
			if opt.Verbose {
				dumpHead(path, 25)
			}
		})
		if err != nil {
			wg.Done()
			return err
		}
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func writeCSV(ev *pmu.TraceEvent, path, sample string, maxRecords int) (int, error) {
	indices, err := sampleIndices(sample, ev.Packets.Len(), maxRecords)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	fields := flit.Fields(ev.Channel)
	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	opcodes := flit.OpcodeNames(ev.Channel)
	row := make([]string, len(fields))
	for _, idx := range indices {
		vals := flit.Decode(ev.Packets.Packet(idx), fields)
		for i, fd := range fields {
			switch fd.Name {
			case "opcode":
				if name, ok := opcodes[vals[i]]; ok {
					row[i] = name
				} else {
					row[i] = strconv.FormatUint(vals[i], 10)
				}
			case "addr":
				row[i] = strconv.FormatUint(vals[i], 16)
			default:
				row[i] = strconv.FormatUint(vals[i], 10)
			}
		}
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return len(indices), f.Close()
}

// sampleIndices picks which packets to render, in increasing order. When
// the trace fits in max every method keeps all of it.
func sampleIndices(method string, n, max int) ([]int, error) {
	switch method {
	case "header", "tail", "evenly", "random":
	default:
		return nil, fmt.Errorf("unknown sample method %q, must be header|tail|evenly|random", method)
	}
	if max <= 0 || max > n {
		max = n
	}
	var indices []int
	switch {
	case method == "header" || max == n:
		indices = make([]int, max)
		for i := range indices {
			indices[i] = i
		}
	case method == "tail":
		indices = make([]int, max)
		for i := range indices {
			indices[i] = n - max + i
		}
	case method == "evenly":
		step := n / max
		indices = make([]int, max)
		for i := range indices {
			indices[i] = i * step
		}
	case method == "random":
		indices = rand.Perm(n)[:max]
		sort.Ints(indices)
	}
	return indices, nil
}

// dumpHead prints the first few CSV lines for a quick review.
func dumpHead(path string, lines int) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("report: %s", err)
		return
	}
	defer f.Close()
	r := csv.NewReader(f)
	for i := 0; i < lines; i++ {
		row, err := r.Read()
		if err != nil {
			break
		}
		fmt.Println(row)
	}
}
