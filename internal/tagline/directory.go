// Package tagline implements the tagline directory (spec §4.4): the
// persistent-in-memory mapping from (tagline, logical_block) to its
// mirrored placement, and the read/write operations that compose the
// allocator and cache around it.
package tagline

import (
	"fmt"

	"github.com/ehrlich-b/raidline/internal/alloc"
	"github.com/ehrlich-b/raidline/internal/cache"
	"github.com/ehrlich-b/raidline/internal/interfaces"
	"github.com/ehrlich-b/raidline/internal/types"
)

// ErrOutOfRange is returned when a tagline id is not in [0, maxlines).
var ErrOutOfRange = fmt.Errorf("tagline: id out of range")

// ErrHole is returned when a write would start beyond the tagline's
// current high-water mark, which would leave a gap in the logical
// address space (spec §4.4: "hole not permitted").
var ErrHole = fmt.Errorf("tagline: write would create a hole")

// ErrBeyondWriteFrontier is returned when a read addresses a logical
// block that has never been written.
var ErrBeyondWriteFrontier = fmt.Errorf("tagline: read beyond write frontier")

// ErrTaglineFull is returned when a write would grow a tagline past its
// configured maximum logical block count.
var ErrTaglineFull = fmt.Errorf("tagline: logical block limit reached")

// line is one tagline's append-only sequence of placements.
type line struct {
	placements []types.Placement
}

// Directory owns every tagline for the lifetime of a driver (spec §3:
// "created at init, destroyed at close").
type Directory struct {
	lines   []line
	maxLogicalBlocks int
	blockSize int
	alloc   *alloc.Allocator
	cache   *cache.Cache
	bus     interfaces.Bus
}

// Config configures a new Directory.
type Config struct {
	MaxLines         int
	MaxLogicalBlocks int
	BlockSize        int
	Allocator        *alloc.Allocator
	Cache            *cache.Cache
	Bus              interfaces.Bus
}

// New creates maxlines empty taglines numbered 0..maxlines-1 (spec §4.4
// "init(maxlines)").
func New(cfg Config) *Directory {
	return &Directory{
		lines:            make([]line, cfg.MaxLines),
		maxLogicalBlocks: cfg.MaxLogicalBlocks,
		blockSize:        cfg.BlockSize,
		alloc:            cfg.Allocator,
		cache:            cfg.Cache,
		bus:              cfg.Bus,
	}
}

// NextLogicalIndex returns a tagline's current high-water mark, i.e. the
// logical index the next append-only write must start at.
func (d *Directory) NextLogicalIndex(tag uint16) (int, error) {
	l, err := d.line(tag)
	if err != nil {
		return 0, err
	}
	return len(l.placements), nil
}

func (d *Directory) line(tag uint16) (*line, error) {
	if int(tag) >= len(d.lines) {
		return nil, fmt.Errorf("%w: tagline %d (max %d)", ErrOutOfRange, tag, len(d.lines))
	}
	return &d.lines[tag], nil
}

// Write implements spec §4.4/§6's write(tag, bnum, nblocks, buffer):
// buf must hold exactly nblocks*BLOCK_SIZE bytes, and each of the
// nblocks consecutive logical blocks starting at bnum is written in
// turn, in order, stopping at the first error.
func (d *Directory) Write(tag uint16, bnum uint32, nblocks uint8, buf []byte) error {
	want := int(nblocks) * d.blockSize
	if len(buf) != want {
		return fmt.Errorf("tagline: write buffer is %d bytes, want %d (nblocks=%d * block_size=%d)", len(buf), want, nblocks, d.blockSize)
	}
	for i := uint32(0); i < uint32(nblocks); i++ {
		off := int(i) * d.blockSize
		if err := d.writeOne(tag, bnum+i, buf[off:off+d.blockSize]); err != nil {
			return err
		}
	}
	return nil
}

// writeOne implements spec §4.4's per-block write decision: append a
// fresh placement at the high-water mark, overwrite an existing one in
// place, or reject a hole.
func (d *Directory) writeOne(tag uint16, bnum uint32, buf []byte) error {
	l, err := d.line(tag)
	if err != nil {
		return err
	}

	next := uint32(len(l.placements))
	switch {
	case bnum == next:
		if len(l.placements) >= d.maxLogicalBlocks {
			return ErrTaglineFull
		}
		placement, err := d.alloc.AllocatePair()
		if err != nil {
			return fmt.Errorf("tagline: allocate placement for tag %d block %d: %w", tag, bnum, err)
		}
		if err := d.cache.Put(placement.Primary, buf); err != nil {
			return fmt.Errorf("tagline: cache primary: %w", err)
		}
		if err := d.cache.Put(placement.Mirror, buf); err != nil {
			return fmt.Errorf("tagline: cache mirror: %w", err)
		}
		l.placements = append(l.placements, placement)
		return nil

	case bnum < next:
		placement := l.placements[bnum]
		if err := d.cache.Put(placement.Primary, buf); err != nil {
			return fmt.Errorf("tagline: cache primary: %w", err)
		}
		if err := d.cache.Put(placement.Mirror, buf); err != nil {
			return fmt.Errorf("tagline: cache mirror: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: tag %d block %d, next %d", ErrHole, tag, bnum, next)
	}
}

// Read implements spec §4.4/§6's read(tag, bnum, nblocks, buffer):
// returns nblocks*BLOCK_SIZE bytes covering the nblocks consecutive
// logical blocks starting at bnum, each read in turn and concatenated
// in order.
func (d *Directory) Read(tag uint16, bnum uint32, nblocks uint8) ([]byte, error) {
	out := make([]byte, int(nblocks)*d.blockSize)
	for i := uint32(0); i < uint32(nblocks); i++ {
		buf, err := d.readOne(tag, bnum+i)
		if err != nil {
			return nil, err
		}
		copy(out[int(i)*d.blockSize:], buf)
	}
	return out, nil
}

// readOne implements spec §4.4's single-block read path: look up the
// placement, consult the cache for the primary, falling back to a bus
// READ on a miss and populating the cache with the result. Mirrors are
// never consulted on the healthy read path.
func (d *Directory) readOne(tag uint16, bnum uint32) ([]byte, error) {
	l, err := d.line(tag)
	if err != nil {
		return nil, err
	}
	if bnum >= uint32(len(l.placements)) {
		return nil, fmt.Errorf("%w: tag %d block %d, frontier %d", ErrBeyondWriteFrontier, tag, bnum, len(l.placements))
	}
	placement := l.placements[bnum]

	if buf, ok := d.cache.Get(placement.Primary); ok {
		return buf, nil
	}

	buf, err := d.bus.Read(placement.Primary)
	if err != nil {
		return nil, fmt.Errorf("tagline: bus read %s: %w", placement.Primary, err)
	}
	if err := d.cache.Put(placement.Primary, buf); err != nil {
		return nil, fmt.Errorf("tagline: cache populate after read miss: %w", err)
	}
	return buf, nil
}

// Placement returns the placement recorded for (tag, bnum), used by the
// recovery engine to walk every placement on the array.
func (d *Directory) Placement(tag uint16, bnum uint32) (types.Placement, error) {
	l, err := d.line(tag)
	if err != nil {
		return types.Placement{}, err
	}
	if bnum >= uint32(len(l.placements)) {
		return types.Placement{}, ErrBeyondWriteFrontier
	}
	return l.placements[bnum], nil
}

// Walk calls fn for every placement of every tagline, in tagline-then-
// logical-index order. It is used by the recovery engine (spec §4.5,
// "walk every tagline and every placement within it").
func (d *Directory) Walk(fn func(tag uint16, bnum uint32, placement types.Placement)) {
	for tag := range d.lines {
		for bnum, placement := range d.lines[tag].placements {
			fn(uint16(tag), uint32(bnum), placement)
		}
	}
}

// Lines reports how many taglines the directory was created with.
func (d *Directory) Lines() int { return len(d.lines) }
