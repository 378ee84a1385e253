package raidline

import (
	"testing"

	"github.com/ehrlich-b/raidline/internal/bus"
	"github.com/stretchr/testify/require"
)

const (
	scenarioDisks         = 4
	scenarioBlocksPerDisk = 8
	scenarioBlockSize     = 16
)

func openScenario(t *testing.T) (*Driver, *bus.Fake) {
	t.Helper()
	fake := bus.NewFake(scenarioDisks, scenarioBlocksPerDisk, scenarioBlockSize)
	d, err := Open(Config{
		Disks:                      scenarioDisks,
		BlocksPerDisk:              scenarioBlocksPerDisk,
		BlockSize:                  scenarioBlockSize,
		MaxLogicalBlocksPerTagline: 4,
		CacheCapacity:              4,
		NumTaglines:                4,
		Bus:                        fake,
	})
	require.NoError(t, err)
	return d, fake
}

func block(fill byte) []byte {
	b := make([]byte, scenarioBlockSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	require.NoError(t, d.Write(0, 0, 1, block(0x42)))
	got, err := d.Read(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, block(0x42), got)
}

func TestMultiBlockWriteThenReadRoundTrip(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	buf := append(append([]byte{}, block(0x10)...), block(0x20)...)
	buf = append(buf, block(0x30)...)
	require.NoError(t, d.Write(0, 0, 3, buf))

	got, err := d.Read(0, 0, 3)
	require.NoError(t, err)
	require.Equal(t, buf, got)

	idx, err := d.directory.NextLogicalIndex(0)
	require.NoError(t, err)
	require.Equal(t, 3, idx)
}

func TestMultiBlockWriteRejectsMismatchedBufferLength(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	err := d.Write(0, 0, 2, block(0x01))
	require.Error(t, err)
}

func TestOverwriteDoesNotAdvanceFrontier(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	require.NoError(t, d.Write(0, 0, 1, block(0x01)))
	require.NoError(t, d.Write(0, 0, 1, block(0x02)))

	got, err := d.Read(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, block(0x02), got)
	require.Equal(t, 1, func() int {
		n, err := d.directory.NextLogicalIndex(0)
		require.NoError(t, err)
		return n
	}())
}

func TestHoleWriteIsRejected(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	err := d.Write(0, 1, 1, block(0xFF))
	require.Error(t, err)
}

func TestReadEvictedBlockFallsBackToBus(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	// Cache capacity is 4 slots and every logical write consumes two
	// (primary+mirror), so three writes evict the first pair through to
	// the bus before we read it back.
	require.NoError(t, d.Write(0, 0, 1, block(0xAA)))
	require.NoError(t, d.Write(1, 0, 1, block(0xBB)))
	require.NoError(t, d.Write(2, 0, 1, block(0xCC)))

	got, err := d.Read(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, block(0xAA), got)
}

func TestCloseFlushesDirtyEntries(t *testing.T) {
	d, fake := openScenario(t)

	require.NoError(t, d.Write(0, 0, 1, block(0x55)))
	placement, err := d.directory.Placement(0, 0)
	require.NoError(t, err)

	require.NoError(t, d.Close())

	got, err := fake.Read(placement.Primary)
	require.NoError(t, err)
	require.Equal(t, block(0x55), got)
}

func TestDiskSignalRebuildsFailedDiskFromMirror(t *testing.T) {
	d, fake := openScenario(t)
	defer d.Close()

	require.NoError(t, d.Write(0, 0, 1, block(0x77)))
	placement, err := d.directory.Placement(0, 0)
	require.NoError(t, err)
	require.NoError(t, d.cache.Flush())

	fake.Fail(placement.Primary.Disk)
	require.NoError(t, d.DiskSignal())

	got, err := fake.Read(placement.Primary)
	require.NoError(t, err)
	require.Equal(t, block(0x77), got)
}

func TestAllocatorExhaustionSurfacesAsWriteError(t *testing.T) {
	fake := bus.NewFake(2, 1, scenarioBlockSize)
	d, err := Open(Config{
		Disks:                      2,
		BlocksPerDisk:              1,
		BlockSize:                  scenarioBlockSize,
		MaxLogicalBlocksPerTagline: 4,
		CacheCapacity:              4,
		NumTaglines:                2,
		Bus:                        fake,
	})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Write(0, 0, 1, block(0x01)))
	err = d.Write(1, 0, 1, block(0x02))
	require.Error(t, err, "array has only one placement's worth of space, second tagline's write must fail closed")
}

func TestWriteRejectsWrongSizedBuffer(t *testing.T) {
	d, _ := openScenario(t)
	defer d.Close()

	err := d.Write(0, 0, 1, make([]byte, scenarioBlockSize-1))
	require.Error(t, err)
}
