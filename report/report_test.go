package report_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lprylli/cmnperf/pmu"
	"github.com/lprylli/cmnperf/report"
)

// writeTraceLog captures n synthetic req packets: opcode ReadNoSnp (0x04,
// bits 62:68), addr 0xabc (bits 110:161) and the packet index as the cycle
// count (bits 176:191).
func writeTraceLog(t *testing.T, path string, n int) *pmu.Event {
	t.Helper()
	events, err := pmu.ParseEvents([]string{"cmn0/xp=0,port=1,up,channel=req,opcode=readnosnp/"})
	require.NoError(t, err)
	ev := events[0]
	ev.Packets = pmu.NewPacketBuffer()
	for i := 0; i < n; i++ {
		ev.Packets.Append(0, 1|0xabc<<46, uint64(i)<<48)
	}
	require.NoError(t, pmu.SaveTrace(path, events))
	return ev
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// cycles extracts the cycle column, identifying which packets were kept.
func cycles(t *testing.T, rows [][]string) []int {
	t.Helper()
	col := len(rows[0]) - 1
	require.Equal(t, "cycle", rows[0][col])
	var out []int
	for _, row := range rows[1:] {
		v, err := strconv.Atoi(row[col])
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestReportDecodesFields(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.cmn")
	ev := writeTraceLog(t, trace, 3)

	require.NoError(t, report.Run(report.Options{
		Input: trace, OutDir: dir, Sample: "header",
	}))

	rows := readCSV(t, filepath.Join(dir, ev.Name+"-header.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"srcid", "tgtid", "txnid", "opcode", "lpid", "mpam", "addr", "cycle"}, rows[0])
	row := rows[1]
	assert.Equal(t, "ReadNoSnp", row[3])
	assert.Equal(t, "abc", row[6])
	assert.Equal(t, "0", row[7])
	assert.Equal(t, "2", rows[3][7])
}

func TestReportSampling(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.cmn")
	ev := writeTraceLog(t, trace, 10)

	for _, tc := range []struct {
		sample string
		want   []int
	}{
		{"header", []int{0, 1, 2, 3}},
		{"tail", []int{6, 7, 8, 9}},
		{"evenly", []int{0, 2, 4, 6}},
		{"random", nil},
	} {
		out := filepath.Join(dir, tc.sample)
		require.NoError(t, report.Run(report.Options{
			Input: trace, OutDir: out, Sample: tc.sample, MaxRecords: 4,
		}), tc.sample)

		got := cycles(t, readCSV(t, filepath.Join(out, ev.Name+"-"+tc.sample+".csv")))
		require.Len(t, got, 4, tc.sample)
		if tc.want != nil {
			assert.Equal(t, tc.want, got, tc.sample)
		} else {
			assert.IsIncreasing(t, got, tc.sample)
		}
	}
}

func TestReportKeepsShortTrace(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.cmn")
	ev := writeTraceLog(t, trace, 3)

	require.NoError(t, report.Run(report.Options{
		Input: trace, OutDir: dir, Sample: "tail", MaxRecords: 100,
	}))
	got := cycles(t, readCSV(t, filepath.Join(dir, ev.Name+"-tail.csv")))
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestReportBadSample(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.cmn")
	writeTraceLog(t, trace, 3)

	err := report.Run(report.Options{Input: trace, OutDir: dir, Sample: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sample method")
}
