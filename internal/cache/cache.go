// Package cache implements the write-back LRU cache that mediates every
// read and write against the RAID bus (spec §4.2). It is the hottest path
// in the driver.
//
// The recency list is an intrusive doubly-linked list over a fixed arena
// of entries (indices, not pointers), and the key index maps a physical
// address to an arena slot. This mirrors the spec's own design note
// (§9): avoid raw-pointer aliasing hazards by keying the hash index on a
// stable slot index.
package cache

import (
	"fmt"

	"github.com/ehrlich-b/raidline/internal/interfaces"
	"github.com/ehrlich-b/raidline/internal/types"
)

const nilIdx = -1

type entry struct {
	addr       types.PhysAddr
	buf        []byte
	prev, next int32
	used       bool // false for slots on the free list
}

// Cache is a write-back LRU keyed by physical address. It is not safe for
// concurrent use; the driver guarantees single-threaded access (spec §5).
type Cache struct {
	bus      interfaces.Bus
	observer interfaces.Observer
	blockSize int

	entries  []entry
	index    map[types.PhysAddr]int32
	free     int32 // head of the free list, or nilIdx
	head     int32 // MRU
	tail     int32 // LRU
	size     int

	inserts uint64
	gets    uint64
	hits    uint64
	misses  uint64
}

// Config configures a new Cache.
type Config struct {
	Capacity  int
	BlockSize int
	Bus       interfaces.Bus
	Observer  interfaces.Observer
}

// New establishes an empty cache with a fixed maximum entry count
// (spec §4.2 "init(capacity)").
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	c := &Cache{
		bus:       cfg.Bus,
		observer:  cfg.Observer,
		blockSize: cfg.BlockSize,
		entries:   make([]entry, cfg.Capacity),
		index:     make(map[types.PhysAddr]int32, cfg.Capacity),
		head:      nilIdx,
		tail:      nilIdx,
	}
	for i := range c.entries {
		c.entries[i].prev = int32(i) - 1
		c.entries[i].next = int32(i) + 1
	}
	c.entries[len(c.entries)-1].next = nilIdx
	c.free = 0
	return c
}

// Len reports the current number of live entries.
func (c *Cache) Len() int { return c.size }

// Get returns the buffer stored for addr and promotes it to MRU on a hit.
// A miss does not modify the cache (spec §4.2): it is the caller's
// responsibility to Put the freshly fetched buffer.
func (c *Cache) Get(addr types.PhysAddr) ([]byte, bool) {
	c.gets++
	idx, ok := c.index[addr]
	if !ok {
		c.misses++
		c.observeMiss()
		return nil, false
	}
	c.hits++
	c.observeHit()
	c.moveToFront(idx)
	return c.entries[idx].buf, true
}

// Put inserts or overwrites the buffer for addr and promotes it to MRU.
// If the key is already present, this overwrites the buffer in place
// (authoritative update) and counts as a hit; otherwise it counts as a
// miss/insert. When insertion would exceed capacity, Put evicts the LRU
// entry by writing it through to the bus before reusing its slot; a
// failed writeback is returned to the caller and the LRU entry is left
// in place so the dirty bytes are not lost (spec §4.2, §7).
func (c *Cache) Put(addr types.PhysAddr, buf []byte) error {
	if idx, ok := c.index[addr]; ok {
		c.hits++
		c.observeHit()
		copy(c.entries[idx].buf, buf)
		c.moveToFront(idx)
		return nil
	}

	c.misses++
	c.inserts++
	c.observeMiss()

	if c.free == nilIdx {
		if err := c.evictLRU(); err != nil {
			return err
		}
	}

	idx := c.free
	c.free = c.entries[idx].next

	e := &c.entries[idx]
	e.addr = addr
	e.used = true
	if e.buf == nil || len(e.buf) != c.blockSize {
		e.buf = make([]byte, c.blockSize)
	}
	copy(e.buf, buf)

	c.index[addr] = idx
	c.pushFront(idx)
	c.size++
	return nil
}

// Remove drops addr from the cache without flushing it, used by recovery
// to discard a stale entry for a reformatted address before repopulating
// it. It is a no-op if addr is not cached.
func (c *Cache) Remove(addr types.PhysAddr) {
	idx, ok := c.index[addr]
	if !ok {
		return
	}
	c.unlink(idx)
	delete(c.index, addr)
	c.releaseSlot(idx)
	c.size--
}

// evictLRU writes the least-recently-used entry through to the bus and
// frees its slot. Eviction is a pure side effect of Put, never of Get.
func (c *Cache) evictLRU() error {
	idx := c.tail
	if idx == nilIdx {
		return fmt.Errorf("cache: evict called on empty cache")
	}
	e := &c.entries[idx]
	if err := c.bus.Write(e.addr, e.buf); err != nil {
		return fmt.Errorf("cache: evict writeback for %s: %w", e.addr, err)
	}
	c.observeEviction()

	c.unlink(idx)
	delete(c.index, e.addr)
	c.releaseSlot(idx)
	c.size--
	return nil
}

// Flush writes every live entry through to the bus without removing it
// from the cache. Used by Driver.Close before Cache.Close (spec's resolved
// Open Question 1: close flushes); recovery's eager writeback (resolved
// Open Question 3) uses FlushOne instead.
func (c *Cache) Flush() error {
	for idx := c.head; idx != nilIdx; idx = c.entries[idx].next {
		e := &c.entries[idx]
		if err := c.bus.Write(e.addr, e.buf); err != nil {
			return fmt.Errorf("cache: flush writeback for %s: %w", e.addr, err)
		}
	}
	return nil
}

// FlushOne writes a single live entry through to the bus immediately,
// without evicting it. Returns false if addr is not cached.
func (c *Cache) FlushOne(addr types.PhysAddr) (bool, error) {
	idx, ok := c.index[addr]
	if !ok {
		return false, nil
	}
	e := &c.entries[idx]
	if err := c.bus.Write(e.addr, e.buf); err != nil {
		return true, fmt.Errorf("cache: flush writeback for %s: %w", e.addr, err)
	}
	return true, nil
}

// Stats is an aggregate snapshot of cache counters (spec §4.2 "close...
// emits aggregate counters").
type Stats struct {
	Inserts  uint64
	Gets     uint64
	Hits     uint64
	Misses   uint64
	HitRatio float64
	Size     int
}

// Close tears down all entries without flushing them — the driver
// contract is that Close flushes explicitly beforehand if desired (see
// Driver.Close, which does flush). It returns the final Stats.
func (c *Cache) Close() Stats {
	stats := c.snapshot()
	c.entries = nil
	c.index = make(map[types.PhysAddr]int32)
	c.head, c.tail, c.free = nilIdx, nilIdx, nilIdx
	c.size = 0
	return stats
}

func (c *Cache) snapshot() Stats {
	var ratio float64
	if c.gets > 0 {
		ratio = float64(c.hits) / float64(c.gets)
	}
	return Stats{
		Inserts:  c.inserts,
		Gets:     c.gets,
		Hits:     c.hits,
		Misses:   c.misses,
		HitRatio: ratio,
		Size:     c.size,
	}
}

// Snapshot returns a live snapshot of the counters without closing the cache.
func (c *Cache) Snapshot() Stats {
	return c.snapshot()
}

func (c *Cache) observeHit() {
	if c.observer != nil {
		c.observer.ObserveCacheHit()
	}
}

func (c *Cache) observeMiss() {
	if c.observer != nil {
		c.observer.ObserveCacheMiss()
	}
}

func (c *Cache) observeEviction() {
	if c.observer != nil {
		c.observer.ObserveEviction()
	}
}

// --- intrusive list plumbing -------------------------------------------

func (c *Cache) pushFront(idx int32) {
	e := &c.entries[idx]
	e.prev = nilIdx
	e.next = c.head
	if c.head != nilIdx {
		c.entries[c.head].prev = idx
	}
	c.head = idx
	if c.tail == nilIdx {
		c.tail = idx
	}
}

func (c *Cache) unlink(idx int32) {
	e := &c.entries[idx]
	if e.prev != nilIdx {
		c.entries[e.prev].next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nilIdx {
		c.entries[e.next].prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nilIdx, nilIdx
}

func (c *Cache) moveToFront(idx int32) {
	if c.head == idx {
		return
	}
	c.unlink(idx)
	c.pushFront(idx)
}

func (c *Cache) releaseSlot(idx int32) {
	e := &c.entries[idx]
	e.used = false
	e.next = c.free
	e.prev = nilIdx
	c.free = idx
}
