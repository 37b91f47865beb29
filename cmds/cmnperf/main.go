// cmnperf drives the CMN mesh debug/trace hardware: it dumps the mesh
// layout, counts flit events, captures flit traces and renders trace logs
// to CSV.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/periph/host/distro"

	"github.com/lprylli/cmnperf/mesh"
	"github.com/lprylli/cmnperf/pmu"
	"github.com/lprylli/cmnperf/report"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: cmnperf <command> [options]

commands:
  info    dump mesh info and probe the mesh clock
  stat    count watchpoint events
  trace   capture flit packets from watchpoint events
  report  render a trace log to CSV

run "cmnperf <command> -h" for command options
`)
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "info":
		infoCmd(args)
	case "stat":
		statCmd(args)
	case "trace":
		traceCmd(args)
	case "report":
		reportCmd(args)
	default:
		usage()
	}
}

// events accumulates repeated -e options.
type events []string

func (e *events) String() string { return fmt.Sprint(*e) }
func (e *events) Set(v string) error {
	*e = append(*e, v)
	return nil
}

const eventHelp = `watchpoint event list, repeatable, e.g.
cmn0/xp=8,port=1,up,group=0,channel=req/
cmn1/xp=0,port=0,down,group=1,channel=dat,opcode=compdata/
cmn0/xp=8,port=1,up,channel=req/,cmn1/xp=0,port=0,down,channel=dat/`

func openDriver(meshID int) mesh.Driver {
	return mesh.Open(meshID, false)
}

// resetOnSignal clears the debug/trace hardware when the run is
// interrupted, so a killed run does not leave counters enabled.
func resetOnSignal(p *pmu.PMU) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		fmt.Println()
		p.Reset()
		os.Exit(1)
	}()
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	meshID := fs.Int("m", 0, "CMN mesh `id`")
	output := fs.String("o", "", "save mesh info to a JSON `file`")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	mesh.Verbose = *verbose

	if model := distro.DTModel(); model != "" && model != "<unknown>" {
		log.Printf("host: %s", model)
	}
	m := mesh.New(mesh.Open(*meshID, false))
	log.Printf("cmn%d probed", *meshID)

	info, err := json.MarshalIndent(m.Info(), "", "  ")
	if err != nil {
		log.Fatalf("info: %s", err)
	}
	if *output != "" {
		if err := os.WriteFile(*output, append(info, '\n'), 0o644); err != nil {
			log.Fatalf("info: %s", err)
		}
		log.Printf("saved mesh info to %s", *output)
	} else {
		fmt.Printf("%s\n", info)
	}
	probeFreq(m)
}

// probeFreq counts por_dt_pmccntr increments over one second. The cycle
// counter is 40 bits wide and may wrap once during the measurement.
func probeFreq(m *mesh.Mesh) {
	dtc := m.DTCs[0]
	fmt.Print("probe CMN frequency... ")
	dtc.WriteOff(0x0A00, 1) // dt_en
	dtc.WriteOff(0x2100, 1) // pmu_en
	start := dtc.ReadOff(0x2040).Bits(0, 39)
	time.Sleep(time.Second)
	end := dtc.ReadOff(0x2040).Bits(0, 39)
	dtc.WriteOff(0x0A00, 0)
	dtc.WriteOff(0x2100, 0)
	freq := (end - start) & (1<<40 - 1)
	fmt.Printf("%.3f GHz\n", float64(freq)/1e9)
}

func statCmd(args []string) {
	fs := flag.NewFlagSet("stat", flag.ExitOnError)
	var specs events
	fs.Var(&specs, "e", eventHelp)
	interval := fs.Int("I", 1000, "report interval in `msec`")
	timeout := fs.Int("t", 0, "run time in `msec` (0 means no stop)")
	promAddr := fs.String("prom", "", "publish counters on `addr`/metrics")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	mesh.Verbose = *verbose

	evs, err := pmu.ParseEvents(specs)
	if err != nil {
		log.Fatalf("stat: %s", err)
	}
	p := pmu.New(openDriver, false)
	resetOnSignal(p)
	err = pmu.RunStat(p, evs, pmu.StatOptions{
		Interval: time.Duration(*interval) * time.Millisecond,
		Timeout:  time.Duration(*timeout) * time.Millisecond,
		PromAddr: *promAddr,
	})
	p.Reset()
	if err != nil {
		log.Fatalf("stat: %s", err)
	}
}

func traceCmd(args []string) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	var specs events
	fs.Var(&specs, "e", eventHelp)
	interval := fs.Int("I", 1000, "report interval in `msec`")
	timeout := fs.Int("t", 0, "run time in `msec` (0 means run until max size)")
	tracetag := fs.Bool("tracetag", false, "first event tags transactions, others follow the tag")
	maxSize := fs.Int("max-size", 64, "stop once this many `MB` of packets are captured")
	output := fs.String("o", "trace.data", "trace log `file`")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)
	mesh.Verbose = *verbose

	evs, err := pmu.ParseEvents(specs)
	if err != nil {
		log.Fatalf("trace: %s", err)
	}
	p := pmu.New(openDriver, true)
	resetOnSignal(p)
	err = pmu.RunTrace(p, evs, pmu.TraceOptions{
		Interval: time.Duration(*interval) * time.Millisecond,
		Timeout:  time.Duration(*timeout) * time.Millisecond,
		MaxBytes: *maxSize << 20,
		Tracetag: *tracetag,
		Output:   *output,
	})
	p.Reset()
	if err != nil {
		log.Fatalf("trace: %s", err)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	input := fs.String("i", "trace.data", "trace log `file`")
	outDir := fs.String("o", "__csv__", "CSV output `dir`")
	maxRecords := fs.Int("n", 1000, "max records per event (0 dumps all)")
	sample := fs.String("s", "header", "sampling `method`: header|tail|evenly|random")
	verbose := fs.Bool("v", false, "dump the first CSV lines for review")
	fs.Parse(args)

	err := report.Run(report.Options{
		Input:      *input,
		OutDir:     *outDir,
		Sample:     *sample,
		MaxRecords: *maxRecords,
		Verbose:    *verbose,
	})
	if err != nil {
		log.Fatalf("report: %s", err)
	}
}
