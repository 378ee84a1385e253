package bus

import (
	"fmt"

	"github.com/ehrlich-b/raidline/internal/interfaces"
	"github.com/ehrlich-b/raidline/internal/types"
)

// Fake is an in-process RAID array simulation satisfying interfaces.Bus,
// grounded on the teacher's in-memory backend (backend/mem.go): a flat
// byte store per disk, sized the same way, minus the sharded locking
// since the driver never calls the bus concurrently (spec §5).
//
// It additionally supports fault injection (Fail/Heal) so tests and the
// raidlinesim demo can exercise disk_signal without a real RAID server.
type Fake struct {
	disks     []disk
	blockSize int
	calls     []string
}

type disk struct {
	blocks [][]byte
	failed bool
}

// NewFake creates a simulated array of numDisks disks, each with
// blocksPerDisk blocks of blockSize bytes, all zeroed (as if freshly
// formatted).
func NewFake(numDisks int, blocksPerDisk int, blockSize int) *Fake {
	f := &Fake{disks: make([]disk, numDisks), blockSize: blockSize}
	for i := range f.disks {
		f.disks[i].blocks = make([][]byte, blocksPerDisk)
		for b := range f.disks[i].blocks {
			f.disks[i].blocks[b] = make([]byte, blockSize)
		}
	}
	return f
}

// Fail marks disk as failed; subsequent Status calls report it failed and
// Read/Write against it return an error until Format clears the fault.
func (f *Fake) Fail(d uint8) { f.disks[d].failed = true }

// Heal clears a previously injected fault without reformatting the disk.
func (f *Fake) Heal(d uint8) { f.disks[d].failed = false }

// Calls returns the opcode names issued so far, for assertions about call
// ordering (e.g. "status before format" in spec §4.5).
func (f *Fake) Calls() []string { return f.calls }

func (f *Fake) record(op string) { f.calls = append(f.calls, op) }

func (f *Fake) checkDisk(d uint8) error {
	if int(d) >= len(f.disks) {
		return fmt.Errorf("bus: disk %d out of range", d)
	}
	return nil
}

func (f *Fake) Init() error {
	f.record("INIT")
	return nil
}

func (f *Fake) Format(d uint8) error {
	f.record("FORMAT")
	if err := f.checkDisk(d); err != nil {
		return err
	}
	f.disks[d].failed = false
	for i := range f.disks[d].blocks {
		f.disks[d].blocks[i] = make([]byte, f.blockSize)
	}
	return nil
}

func (f *Fake) Read(addr types.PhysAddr) ([]byte, error) {
	f.record("READ")
	if err := f.checkDisk(addr.Disk); err != nil {
		return nil, err
	}
	if f.disks[addr.Disk].failed {
		return nil, fmt.Errorf("bus: disk %d is failed", addr.Disk)
	}
	if int(addr.Block) >= len(f.disks[addr.Disk].blocks) {
		return nil, fmt.Errorf("bus: block %d out of range on disk %d", addr.Block, addr.Disk)
	}
	buf := make([]byte, f.blockSize)
	copy(buf, f.disks[addr.Disk].blocks[addr.Block])
	return buf, nil
}

func (f *Fake) Write(addr types.PhysAddr, buf []byte) error {
	f.record("WRITE")
	if err := f.checkDisk(addr.Disk); err != nil {
		return err
	}
	if f.disks[addr.Disk].failed {
		return fmt.Errorf("bus: disk %d is failed", addr.Disk)
	}
	if int(addr.Block) >= len(f.disks[addr.Disk].blocks) {
		return fmt.Errorf("bus: block %d out of range on disk %d", addr.Block, addr.Disk)
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.disks[addr.Disk].blocks[addr.Block] = cp
	return nil
}

func (f *Fake) Status(d uint8) (bool, error) {
	f.record("STATUS")
	if err := f.checkDisk(d); err != nil {
		return false, err
	}
	return f.disks[d].failed, nil
}

func (f *Fake) Close() error {
	f.record("CLOSE")
	return nil
}

var _ interfaces.Bus = (*Fake)(nil)
