package pmu

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatOptions controls the counting loop.
type StatOptions struct {
	Interval time.Duration
	Timeout  time.Duration // zero means run until interrupted
	PromAddr string        // optional Prometheus listen address
}

func checkInterval(interval, timeout time.Duration) error {
	if interval < 100*time.Millisecond || interval > 100_000*time.Millisecond {
		return fmt.Errorf("interval must be within 100 to 100000 msec")
	}
	if timeout > 0 && timeout < interval {
		return fmt.Errorf("run time less than report interval")
	}
	return nil
}

// RunStat counts the events and reports the counters once per interval.
func RunStat(p *PMU, events []*Event, opt StatOptions) error {
	if err := checkInterval(opt.Interval, opt.Timeout); err != nil {
		return err
	}
	// clear anything a previous run left enabled
	for _, ev := range events {
		if _, err := p.DTMFor(ev.Mesh, ev.XP); err != nil {
			return err
		}
	}
	p.Reset()
	if err := p.Configure(events); err != nil {
		return err
	}
	p.Enable()

	var flits *prometheus.CounterVec
	if opt.PromAddr != "" {
		flits = serveMetrics(opt.PromAddr)
	}

	iterations := -1
	if opt.Timeout > 0 {
		iterations = int(opt.Timeout / opt.Interval)
	}
	next := time.Now()
	for i := 0; iterations < 0 || i < iterations; i++ {
		next = next.Add(opt.Interval)
		if d := time.Until(next); d > 0 {
			time.Sleep(d)
		} else {
			log.Printf("run time exceeds stat interval")
			next = time.Now()
		}
		fmt.Println(strings.Repeat("-", 80))
		for _, c := range p.Snapshot(events) {
			printCount(c.Name, c.Value)
			if flits != nil {
				flits.WithLabelValues(c.Name).Add(float64(c.Value))
			}
		}
	}
	return nil
}

func serveMetrics(addr string) *prometheus.CounterVec {
	flits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cmn_event_flits_total",
		Help: "Flits matched by each configured watchpoint event.",
	}, []string{"event"})
	reg := prometheus.NewRegistry()
	reg.MustRegister(flits)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("stat: metrics listener: %s", err)
		}
	}()
	return flits
}

func printCount(name string, value uint64) {
	if len(name) > 64 {
		name = name[:64]
	}
	fmt.Printf("%-65s%15s\n", name, commas(value))
}

// commas renders 1234567 as "1,234,567".
func commas(v uint64) string {
	s := fmt.Sprintf("%d", v)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
