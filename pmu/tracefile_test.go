package pmu_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lprylli/cmnperf/pmu"
)

func TestPacketBuffer(t *testing.T) {
	buf := pmu.NewPacketBuffer()
	defer buf.Release()

	assert.Zero(t, buf.Len())
	assert.Zero(t, buf.Size())

	buf.Append(0x0102030405060708, 0x1112131415161718, 0x2122232425262728)
	buf.Append(1, 2, 3)
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, 48, buf.Size())

	pkt := buf.Packet(0)
	assert.Equal(t, uint64(0x0102030405060708), pkt[0])
	assert.Equal(t, uint64(0x2122232425262728), pkt[2])
	pkt = buf.Packet(1)
	assert.Equal(t, uint64(2), pkt[1])
}

func TestTraceLogRoundTrip(t *testing.T) {
	events, err := pmu.ParseEvents([]string{
		"cmn0/xp=0,port=1,up,channel=req,opcode=readnosnp/,cmn0/xp=8,port=0,down,channel=dat/",
	})
	require.NoError(t, err)
	for _, ev := range events {
		ev.Packets = pmu.NewPacketBuffer()
	}
	events[0].Packets.Append(0x10, 0x11, 0x12)
	events[0].Packets.Append(0x20, 0x21, 0x22)
	events[1].Packets.Append(0x30, 0x31, 0x32)

	path := filepath.Join(t.TempDir(), "trace.cmn")
	require.NoError(t, pmu.SaveTrace(path, events))

	loaded, err := pmu.LoadTrace(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, events[0].Name, loaded[0].Name)
	assert.Equal(t, "req", loaded[0].Channel)
	require.Equal(t, 2, loaded[0].Packets.Len())
	assert.Equal(t, events[0].Packets.Bytes(), loaded[0].Packets.Bytes())

	assert.Equal(t, "dat", loaded[1].Channel)
	require.Equal(t, 1, loaded[1].Packets.Len())
	pkt := loaded[1].Packets.Packet(0)
	assert.Equal(t, uint64(0x30), pkt[0])
	assert.Equal(t, uint64(0x32), pkt[2])
}

func TestLoadTraceRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus")
	require.NoError(t, os.WriteFile(path, []byte("this is not a trace log"), 0o644))
	_, err := pmu.LoadTrace(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a trace log")
}

func TestLoadTraceRejectsTruncated(t *testing.T) {
	events, err := pmu.ParseEvents([]string{"cmn0/xp=0,port=1,up,channel=req/"})
	require.NoError(t, err)
	events[0].Packets = pmu.NewPacketBuffer()
	events[0].Packets.Append(1, 2, 3)

	path := filepath.Join(t.TempDir(), "trace.cmn")
	require.NoError(t, pmu.SaveTrace(path, events))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-8], 0o644))

	_, err = pmu.LoadTrace(path)
	require.Error(t, err)
}
