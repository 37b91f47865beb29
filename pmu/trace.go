package pmu

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// TraceOptions controls the tracing loop.
type TraceOptions struct {
	Interval time.Duration
	Timeout  time.Duration // zero means run until max size
	MaxBytes int           // stop once this much packet data is captured
	Tracetag bool          // first event tags transactions, others follow the tag
	Output   string
}

// RunTrace captures flit packets for the events, reports capture rates
// once per interval and saves the trace log on completion. The FIFO is
// polled continuously: packet loss is expected under load, packets are
// samples rather than a complete record.
func RunTrace(p *PMU, events []*Event, opt TraceOptions) error {
	if err := checkInterval(opt.Interval, opt.Timeout); err != nil {
		return err
	}
	if opt.Tracetag {
		// only the first event triggers the tag; the others just follow
		// tagged flits, so their own matches are meaningless
		for _, ev := range events[1:] {
			if len(ev.Matches) > 0 {
				log.Printf("tracetag: match group ignored for %s", ev.Name)
			}
			ev.WpVal, ev.WpMask = 0, 0
		}
	}
	for _, ev := range events {
		if _, err := p.DTMFor(ev.Mesh, ev.XP); err != nil {
			return err
		}
	}
	p.Reset()
	if err := p.Configure(events); err != nil {
		return err
	}
	if opt.Tracetag {
		events[0].dtm.EnableTracetag()
	}
	p.Enable()

	lastCounts := make([]int, len(events))
	iterations := -1
	if opt.Timeout > 0 {
		iterations = int(opt.Timeout / opt.Interval)
	}
	for i := 0; iterations < 0 || i < iterations; i++ {
		next := time.Now().Add(opt.Interval)
		for time.Now().Before(next) {
			p.PollTrace(events)
		}
		fmt.Println(strings.Repeat("-", 80))
		total := 0
		for j, ev := range events {
			count := ev.Packets.Len()
			printCount(ev.Name, uint64(count-lastCounts[j]))
			lastCounts[j] = count
			total += ev.Packets.Size()
		}
		if total >= opt.MaxBytes {
			log.Printf("trace: captured %d bytes, stopping", total)
			break
		}
	}
	return SaveTrace(opt.Output, events)
}
