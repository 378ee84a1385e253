// Package constants holds the tunables that configure a driver instance.
package constants

import "time"

// Default array geometry. These are the defaults Open uses when a Config
// field is left zero; once a driver is opened, the geometry is fixed for
// the lifetime of the run (see spec §3).
const (
	// DefaultDisks is the number of physical disks in the array.
	DefaultDisks = 9

	// DefaultBlocksPerDisk is the number of fixed-size blocks on each disk.
	DefaultBlocksPerDisk = 4096

	// DefaultBlockSize is the size in bytes of a single physical block,
	// as defined by the bus protocol.
	DefaultBlockSize = 1024

	// DefaultMaxLogicalBlocksPerTagline bounds how far a single tagline
	// can grow before writes are rejected.
	DefaultMaxLogicalBlocksPerTagline = 256

	// DefaultCacheCapacity is the maximum number of live cache entries,
	// sized at roughly two disks' worth of blocks.
	DefaultCacheCapacity = 2 * DefaultBlocksPerDisk
)

// Bus timing. The bus is a synchronous request/response primitive; these
// bound how long a single round trip is allowed to take before the driver
// gives up on the connection.
const (
	// DialTimeout bounds the initial TCP handshake to the RAID server.
	DialTimeout = 5 * time.Second

	// CallTimeout bounds a single opcode round trip (write deadline plus
	// read deadline together).
	CallTimeout = 10 * time.Second
)

// FailedDiskSentinel is the block_id value a STATUS response carries
// when the polled disk_number is considered failed (spec §6).
const FailedDiskSentinel = 2
