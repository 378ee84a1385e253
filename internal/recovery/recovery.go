// Package recovery implements the disk-failure recovery protocol (spec
// §4.5): poll every disk's status, reformat whichever are failed, and
// rebuild every placement that had a side on a failed disk from its
// surviving mirror, preferring the cache over the bus.
//
// The "prefer the surviving copy, fall back to the authoritative store
// only on a miss, then backfill" sourcing policy is grounded on the
// mirrored-read-with-fallback idiom used by replicated blob-access
// layers in the wider corpus (a tri-mirrored blob store reads whichever
// mirror answers and repairs the others lazily); here recovery has an
// explicit "lost" side to repair rather than an arbitrary laggard.
package recovery

import (
	"fmt"

	"github.com/ehrlich-b/raidline/internal/cache"
	"github.com/ehrlich-b/raidline/internal/interfaces"
	"github.com/ehrlich-b/raidline/internal/tagline"
	"github.com/ehrlich-b/raidline/internal/types"
)

// Engine runs the disk_signal protocol against a directory, cache and
// bus. It holds no state of its own between runs.
type Engine struct {
	bus       interfaces.Bus
	cache     *cache.Cache
	directory *tagline.Directory
	observer  interfaces.Observer
	logger    interfaces.Logger
	numDisks  uint8
}

// Config configures a new Engine.
type Config struct {
	Bus       interfaces.Bus
	Cache     *cache.Cache
	Directory *tagline.Directory
	Observer  interfaces.Observer
	Logger    interfaces.Logger
	NumDisks  uint8
}

// New creates a recovery Engine.
func New(cfg Config) *Engine {
	return &Engine{
		bus:       cfg.Bus,
		cache:     cfg.Cache,
		directory: cfg.Directory,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		numDisks:  cfg.NumDisks,
	}
}

// Run executes the full protocol (spec §4.5):
//  1. poll STATUS on every disk before touching any of them;
//  2. FORMAT each disk found failed;
//  3. walk every placement and rebuild any side that lived on a failed
//     disk from its surviving mirror, sourcing bytes from the cache when
//     possible and falling back to a bus READ otherwise.
//
// It returns the first unrecoverable bus error, leaving any
// partially-rebuilt disk in whatever state the bus last reported (spec
// §7).
func (e *Engine) Run() error {
	failed, err := e.pollFailedDisks()
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		return nil
	}

	for _, d := range failed {
		if err := e.bus.Format(d); err != nil {
			return fmt.Errorf("recovery: format disk %d: %w", d, err)
		}
		e.logf("recovery event=reformatted disk=%d", d)
	}

	rebuilt := make(map[uint8]int, len(failed))
	var walkErr error
	e.directory.Walk(func(tag uint16, bnum uint32, placement types.Placement) {
		if walkErr != nil {
			return
		}
		for _, side := range []struct {
			lost, alive types.PhysAddr
			diskLost    uint8
		}{
			{placement.Primary, placement.Mirror, placement.Primary.Disk},
			{placement.Mirror, placement.Primary, placement.Mirror.Disk},
		} {
			if !isFailed(failed, side.diskLost) {
				continue
			}
			if err := e.rebuildOne(side.lost, side.alive); err != nil {
				walkErr = fmt.Errorf("recovery: rebuild tag %d block %d: %w", tag, bnum, err)
				return
			}
			e.logf("recovery event=rebuilt tag=%d block=%d disk_lost=%d disk_alive=%d", tag, bnum, side.diskLost, side.alive.Disk)
			rebuilt[side.diskLost]++
		}
	})
	if walkErr != nil {
		return walkErr
	}

	for _, d := range failed {
		e.observeRecovery(d, rebuilt[d])
	}
	return nil
}

// pollFailedDisks issues RAID STATUS for every disk before any FORMAT is
// issued (spec §4.5 ordering: "status is polled for all disks before any
// format").
func (e *Engine) pollFailedDisks() ([]uint8, error) {
	var failed []uint8
	for d := uint8(0); d < e.numDisks; d++ {
		isFailed, err := e.bus.Status(d)
		if err != nil {
			return nil, fmt.Errorf("recovery: status disk %d: %w", d, err)
		}
		if isFailed {
			failed = append(failed, d)
		}
	}
	return failed, nil
}

// rebuildOne recovers the bytes for lost (now on a freshly reformatted,
// blank disk) from alive, preferring the cache (spec §4.5 step 2.b).
// It eagerly writes the recovered bytes through for lost rather than
// relying solely on a future eviction, strengthening recovery as spec §9
// Open Question 3 allows.
func (e *Engine) rebuildOne(lost, alive types.PhysAddr) error {
	buf, ok := e.cache.Get(alive)
	if !ok {
		fetched, err := e.bus.Read(alive)
		if err != nil {
			return fmt.Errorf("bus read of surviving copy %s: %w", alive, err)
		}
		buf = fetched
		if err := e.cache.Put(alive, buf); err != nil {
			return fmt.Errorf("populate cache for surviving copy %s: %w", alive, err)
		}
	}

	if err := e.cache.Put(lost, buf); err != nil {
		return fmt.Errorf("populate cache for rebuilt copy %s: %w", lost, err)
	}
	if _, err := e.cache.FlushOne(lost); err != nil {
		return fmt.Errorf("eager writeback for rebuilt copy %s: %w", lost, err)
	}
	return nil
}

func isFailed(failed []uint8, d uint8) bool {
	for _, f := range failed {
		if f == d {
			return true
		}
	}
	return false
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Infof(format, args...)
	}
}

func (e *Engine) observeRecovery(disk uint8, blocksRebuilt int) {
	if e.observer != nil {
		e.observer.ObserveRecovery(disk, blocksRebuilt)
	}
}
