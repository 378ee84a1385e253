package cache

import (
	"errors"
	"testing"

	"github.com/ehrlich-b/raidline/internal/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	writes  []types.PhysAddr
	written map[types.PhysAddr][]byte
	failOn  types.PhysAddr
	hasFail bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{written: make(map[types.PhysAddr][]byte)}
}

func (b *fakeBus) Init() error           { return nil }
func (b *fakeBus) Format(uint8) error    { return nil }
func (b *fakeBus) Read(types.PhysAddr) ([]byte, error) {
	return nil, errors.New("not used in cache tests")
}
func (b *fakeBus) Write(addr types.PhysAddr, buf []byte) error {
	if b.hasFail && addr == b.failOn {
		return errors.New("simulated bus write failure")
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	b.written[addr] = cp
	b.writes = append(b.writes, addr)
	return nil
}
func (b *fakeBus) Status(uint8) (bool, error) { return false, nil }
func (b *fakeBus) Close() error               { return nil }

func addr(d uint8, b uint32) types.PhysAddr { return types.PhysAddr{Disk: d, Block: b} }

func newTestCache(capacity int) (*Cache, *fakeBus) {
	bus := newFakeBus()
	c := New(Config{Capacity: capacity, BlockSize: 8, Bus: bus})
	return c, bus
}

func block(b byte) []byte {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestGetMissDoesNotModifyCache(t *testing.T) {
	c, _ := newTestCache(4)
	_, ok := c.Get(addr(0, 0))
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestPutThenGetHit(t *testing.T) {
	c, _ := newTestCache(4)
	require.NoError(t, c.Put(addr(0, 0), block('A')))

	got, ok := c.Get(addr(0, 0))
	require.True(t, ok)
	require.Equal(t, block('A'), got)
}

func TestPutOverwriteIsAuthoritative(t *testing.T) {
	c, _ := newTestCache(4)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	require.NoError(t, c.Put(addr(0, 0), block('B')))

	got, ok := c.Get(addr(0, 0))
	require.True(t, ok)
	require.Equal(t, block('B'), got)
	require.Equal(t, 1, c.Len())
}

func TestEvictionWritesThroughLRU(t *testing.T) {
	c, bus := newTestCache(2)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	require.NoError(t, c.Put(addr(1, 0), block('B')))
	// addr(0,0) is LRU; inserting a third key evicts it.
	require.NoError(t, c.Put(addr(2, 0), block('C')))

	require.Equal(t, []types.PhysAddr{addr(0, 0)}, bus.writes)
	require.Equal(t, block('A'), bus.written[addr(0, 0)])
	require.Equal(t, 2, c.Len())

	_, ok := c.Get(addr(0, 0))
	require.False(t, ok, "evicted key should be gone from the cache")
}

func TestLRUOrderSurvivesGetPromotion(t *testing.T) {
	c, bus := newTestCache(2)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	require.NoError(t, c.Put(addr(1, 0), block('B')))

	// touch (0,0) so (1,0) becomes LRU
	_, ok := c.Get(addr(0, 0))
	require.True(t, ok)

	require.NoError(t, c.Put(addr(2, 0), block('C')))
	require.Equal(t, []types.PhysAddr{addr(1, 0)}, bus.writes)
}

func TestFailedEvictionPreservesDirtyEntry(t *testing.T) {
	c, bus := newTestCache(2)
	bus.hasFail = true
	bus.failOn = addr(0, 0)

	require.NoError(t, c.Put(addr(0, 0), block('A')))
	require.NoError(t, c.Put(addr(1, 0), block('B')))

	err := c.Put(addr(2, 0), block('C'))
	require.Error(t, err)

	// The LRU entry must still be present with its dirty bytes.
	got, ok := c.Get(addr(0, 0))
	require.True(t, ok)
	require.Equal(t, block('A'), got)
	require.Equal(t, 2, c.Len())
}

func TestCapacityNeverExceeded(t *testing.T) {
	c, _ := newTestCache(8)
	for i := uint32(0); i < 100; i++ {
		require.NoError(t, c.Put(addr(uint8(i%9), i), block(byte(i))))
		require.LessOrEqual(t, c.Len(), 8)
	}
}

func TestFlushWritesWithoutEviction(t *testing.T) {
	c, bus := newTestCache(4)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	require.NoError(t, c.Flush())

	require.Equal(t, 1, c.Len())
	require.Equal(t, block('A'), bus.written[addr(0, 0)])
}

func TestCloseReturnsStats(t *testing.T) {
	c, _ := newTestCache(4)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	_, _ = c.Get(addr(0, 0))
	_, _ = c.Get(addr(1, 0)) // miss

	stats := c.Close()
	want := Stats{Inserts: 1, Gets: 2, Hits: 1, Misses: 2, HitRatio: 0.5, Size: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveDropsEntryWithoutFlush(t *testing.T) {
	c, bus := newTestCache(4)
	require.NoError(t, c.Put(addr(0, 0), block('A')))
	c.Remove(addr(0, 0))

	_, ok := c.Get(addr(0, 0))
	require.False(t, ok)
	require.Empty(t, bus.writes)
}
