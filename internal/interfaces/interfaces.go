// Package interfaces provides internal interface definitions shared by the
// driver's packages. These are separate from the root package's surface to
// avoid circular imports between the root package and internal/*.
package interfaces

import "github.com/ehrlich-b/raidline/internal/types"

// Bus is the synchronous request/response primitive the core depends on
// (spec §2.1, §6). Every call blocks until the corresponding response
// arrives or the call errors out; there is no batching or pipelining.
type Bus interface {
	// Init performs the bus-level INIT handshake.
	Init() error

	// Format reformats a single disk, zeroing its contents.
	Format(disk uint8) error

	// Read fetches exactly one block from (disk, block).
	Read(addr types.PhysAddr) ([]byte, error)

	// Write stores buf (exactly one block) at (disk, block).
	Write(addr types.PhysAddr, buf []byte) error

	// Status reports whether disk is healthy. A true return means failed.
	Status(disk uint8) (failed bool, err error)

	// Close tears down the bus connection.
	Close() error
}

// Logger is the optional logging sink the recovery engine writes
// diagnostics to; a nil Logger turns its logging off. The Driver's own
// log lines (cache statistics on Close) go to logging.Default() whether
// or not a Logger is configured.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives point events for metrics collection. Implementations
// must be safe to call from a single goroutine sequentially; the driver
// never calls Observer methods concurrently with each other.
type Observer interface {
	ObserveCacheHit()
	ObserveCacheMiss()
	ObserveEviction()
	ObserveBusCall(op string, latencyNs uint64, success bool)
	ObserveRecovery(disk uint8, blocksRebuilt int)
}
