// Package alloc implements the physical-address allocator (spec §4.3): a
// single process-wide cursor that hands out disjoint (disk, block) pairs
// for a placement's primary and mirror.
package alloc

import (
	"errors"

	"github.com/ehrlich-b/raidline/internal/types"
)

// ErrExhausted is returned once the array has no remaining capacity for
// a new placement.
var ErrExhausted = errors.New("alloc: array is full")

// Allocator hands out physical addresses from a monotonically advancing
// cursor. It carries the mirror-disjointness constraint explicitly
// (spec §4.3 option (a)): when advancing the cursor after a primary would
// collide with it on the same disk, it re-advances past the collision
// rather than ever returning primary.Disk == mirror.Disk.
type Allocator struct {
	disks         uint8
	blocksPerDisk uint32

	nextDisk  uint8
	nextBlock uint32
	full      bool
}

// New creates an Allocator over an array of disks disks, each with
// blocksPerDisk blocks, with the cursor reset to (0, 0) (spec §3: "reset
// only by init").
func New(disks uint8, blocksPerDisk uint32) *Allocator {
	return &Allocator{disks: disks, blocksPerDisk: blocksPerDisk}
}

// advance moves the cursor to the next (disk, block) pair, marking the
// allocator full once it runs off the end of the last disk.
func (a *Allocator) advance() {
	if a.full {
		return
	}
	a.nextDisk++
	if a.nextDisk >= a.disks {
		a.nextDisk = 0
		a.nextBlock++
		if a.nextBlock >= a.blocksPerDisk {
			a.full = true
		}
	}
}

// next returns the current cursor position and advances it, or
// ErrExhausted if the array has no more capacity.
func (a *Allocator) next() (types.PhysAddr, error) {
	if a.full {
		return types.PhysAddr{}, ErrExhausted
	}
	addr := types.PhysAddr{Disk: a.nextDisk, Block: a.nextBlock}
	a.advance()
	return addr, nil
}

// AllocatePair allocates a primary and mirror placement with
// primary.Disk != mirror.Disk, satisfying the disjointness invariant
// (spec §3, §8 "mirror disjointness"). With two or more disks,
// consecutive cursor allocations always land on different disks; when the
// primary takes the array's last free address, the mirror allocation fails
// and the pair is rolled back. The only genuine collision is a single-disk
// array, where the re-advance loop below runs off the end of the disk and
// every pair fails with ErrExhausted.
func (a *Allocator) AllocatePair() (types.Placement, error) {
	primary, err := a.next()
	if err != nil {
		return types.Placement{}, err
	}

	mirror, err := a.next()
	if err != nil {
		// Roll back the primary allocation: a pair is all-or-nothing
		// (spec §8 scenario 6, "capacity exhausted").
		a.rollback(primary)
		return types.Placement{}, ErrExhausted
	}

	for mirror.Disk == primary.Disk {
		// Only reachable on a single-disk array; re-advance past the
		// collision per §4.3(a).
		next, err := a.next()
		if err != nil {
			a.rollback(primary)
			return types.Placement{}, ErrExhausted
		}
		mirror = next
	}

	return types.Placement{Primary: primary, Mirror: mirror}, nil
}

// rollback undoes a partial pair by rewinding the cursor to addr, the
// primary that was handed out first, and clearing the full flag; every
// address handed out after addr is released with it.
func (a *Allocator) rollback(addr types.PhysAddr) {
	a.nextDisk = addr.Disk
	a.nextBlock = addr.Block
	a.full = false
}

// Cursor returns the current (disk, block) the allocator would hand out
// next, for diagnostics and tests.
func (a *Allocator) Cursor() (disk uint8, block uint32, full bool) {
	return a.nextDisk, a.nextBlock, a.full
}
