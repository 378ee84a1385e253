// Package raidline provides the driver API for a mirrored RAID block
// store: numbered taglines of fixed-size blocks, mirrored across a
// remote disk array reached over a bus, cached write-back in front of
// the bus, with a recovery engine to rebuild a failed disk.
package raidline

import (
	"fmt"

	"github.com/ehrlich-b/raidline/internal/alloc"
	"github.com/ehrlich-b/raidline/internal/bus"
	"github.com/ehrlich-b/raidline/internal/cache"
	"github.com/ehrlich-b/raidline/internal/constants"
	"github.com/ehrlich-b/raidline/internal/interfaces"
	"github.com/ehrlich-b/raidline/internal/logging"
	"github.com/ehrlich-b/raidline/internal/recovery"
	"github.com/ehrlich-b/raidline/internal/tagline"
)

// Config configures a new Driver. Zero-valued geometry fields fall back
// to the array defaults (spec §3).
type Config struct {
	Disks                    int
	BlocksPerDisk            int
	BlockSize                int
	MaxLogicalBlocksPerTagline int
	CacheCapacity            int
	NumTaglines              int

	// BusAddr dials a real bus.Client at the given address. Leave empty
	// and set Bus instead to drive the driver against an in-process Bus
	// (e.g. a *bus.Fake), as the scenario tests do.
	BusAddr string
	Bus     interfaces.Bus

	Logger   Logger
	Observer Observer
}

// Logger and Observer are re-exported so callers outside this module
// never need to import internal/interfaces directly.
type Logger = interfaces.Logger
type Observer = interfaces.Observer

func (c Config) withDefaults() Config {
	if c.Disks == 0 {
		c.Disks = constants.DefaultDisks
	}
	if c.BlocksPerDisk == 0 {
		c.BlocksPerDisk = constants.DefaultBlocksPerDisk
	}
	if c.BlockSize == 0 {
		c.BlockSize = constants.DefaultBlockSize
	}
	if c.MaxLogicalBlocksPerTagline == 0 {
		c.MaxLogicalBlocksPerTagline = constants.DefaultMaxLogicalBlocksPerTagline
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = constants.DefaultCacheCapacity
	}
	if c.NumTaglines == 0 {
		c.NumTaglines = c.Disks * c.BlocksPerDisk / c.MaxLogicalBlocksPerTagline
	}
	return c
}

// Driver composes the bus, cache, allocator, tagline directory and
// recovery engine into the RAID array's single entry point (spec §2,
// §4). It is not safe for concurrent use (spec §5): a caller that wants
// concurrent taglines must serialize access to a single Driver itself.
type Driver struct {
	cfg       Config
	bus       interfaces.Bus
	cache     *cache.Cache
	allocator *alloc.Allocator
	directory *tagline.Directory
	recovery  *recovery.Engine
	logger    *logging.Logger
	closed    bool
}

// Open dials (or adopts) a bus, then constructs the cache, allocator,
// tagline directory and recovery engine above it (spec §2.2's init
// sequence). Geometry is fixed for the driver's lifetime once Open
// returns.
func Open(cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()

	var b interfaces.Bus
	switch {
	case cfg.Bus != nil:
		b = cfg.Bus
	case cfg.BusAddr != "":
		client, err := bus.Dial(bus.Config{Addr: cfg.BusAddr, BlockSize: cfg.BlockSize, Observer: cfg.Observer})
		if err != nil {
			return nil, fmt.Errorf("raidline: dial bus: %w", err)
		}
		b = client
	default:
		return nil, fmt.Errorf("raidline: Config needs either BusAddr or Bus")
	}

	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("raidline: bus init: %w", err)
	}

	for disk := 0; disk < cfg.Disks; disk++ {
		if err := b.Format(uint8(disk)); err != nil {
			return nil, fmt.Errorf("raidline: format disk %d: %w", disk, err)
		}
	}

	c := cache.New(cache.Config{
		Capacity:  cfg.CacheCapacity,
		BlockSize: cfg.BlockSize,
		Bus:       b,
		Observer:  cfg.Observer,
	})

	allocator := alloc.New(uint8(cfg.Disks), uint32(cfg.BlocksPerDisk))

	directory := tagline.New(tagline.Config{
		MaxLines:         cfg.NumTaglines,
		MaxLogicalBlocks: cfg.MaxLogicalBlocksPerTagline,
		BlockSize:        cfg.BlockSize,
		Allocator:        allocator,
		Cache:            c,
		Bus:              b,
	})

	rec := recovery.New(recovery.Config{
		Bus:       b,
		Cache:     c,
		Directory: directory,
		Observer:  cfg.Observer,
		Logger:    cfg.Logger,
		NumDisks:  uint8(cfg.Disks),
	})

	logger := logging.Default()
	if cfg.Logger != nil {
		logger = logger.WithOp("raidline").WithFields("disks", cfg.Disks, "block_size", cfg.BlockSize)
	}

	return &Driver{
		cfg:       cfg,
		bus:       b,
		cache:     c,
		allocator: allocator,
		directory: directory,
		recovery:  rec,
		logger:    logger,
	}, nil
}

// Read returns the nblocks*BLOCK_SIZE bytes stored in the nblocks
// consecutive logical blocks starting at bnum (spec §4.4/§6).
func (d *Driver) Read(tag uint16, bnum uint32, nblocks uint8) ([]byte, error) {
	if d.closed {
		return nil, fmt.Errorf("raidline: driver is closed")
	}
	return d.directory.Read(tag, bnum, nblocks)
}

// Write stores buf across the nblocks consecutive logical blocks
// starting at bnum; buf must hold exactly nblocks*BLOCK_SIZE bytes.
// bnum must equal the tagline's current write frontier (append) or
// address an already-written block (overwrite); any other value
// returns tagline.ErrHole (spec §4.4).
func (d *Driver) Write(tag uint16, bnum uint32, nblocks uint8, buf []byte) error {
	if d.closed {
		return fmt.Errorf("raidline: driver is closed")
	}
	want := int(nblocks) * d.cfg.BlockSize
	if len(buf) != want {
		return fmt.Errorf("raidline: write payload is %d bytes, want %d (nblocks=%d * block_size=%d)", len(buf), want, nblocks, d.cfg.BlockSize)
	}
	return d.directory.Write(tag, bnum, nblocks, buf)
}

// NumTaglines reports how many taglines the driver was opened with.
func (d *Driver) NumTaglines() int { return d.directory.Lines() }

// DiskSignal runs the disk-failure recovery protocol: poll every disk's
// status, reformat whichever are failed, and rebuild every placement
// that lived on a failed disk from its surviving mirror (spec §4.5).
// It is safe to call with no disks failed, in which case it is a no-op.
func (d *Driver) DiskSignal() error {
	if d.closed {
		return fmt.Errorf("raidline: driver is closed")
	}
	return d.recovery.Run()
}

// CacheStats returns a live snapshot of the write-back cache's counters.
func (d *Driver) CacheStats() cache.Stats {
	return d.cache.Snapshot()
}

// Close flushes every dirty cache entry through to the bus (spec §9,
// Open Question 1: close flushes) and tears down the bus connection.
// It returns the first error encountered, still attempting both steps.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	flushErr := d.cache.Flush()
	stats := d.cache.Close()
	d.logger.WithFields("inserts", stats.Inserts, "gets", stats.Gets, "hits", stats.Hits,
		"misses", stats.Misses, "hit_ratio", stats.HitRatio).Info("cache closed")

	busErr := d.bus.Close()

	if flushErr != nil {
		return fmt.Errorf("raidline: flush on close: %w", flushErr)
	}
	if busErr != nil {
		return fmt.Errorf("raidline: bus close: %w", busErr)
	}
	return nil
}
