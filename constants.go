package raidline

import "github.com/ehrlich-b/raidline/internal/constants"

// Re-exported array geometry defaults (spec §3), so callers never need
// to import internal/constants directly.
const (
	DefaultDisks                      = constants.DefaultDisks
	DefaultBlocksPerDisk               = constants.DefaultBlocksPerDisk
	DefaultBlockSize                   = constants.DefaultBlockSize
	DefaultMaxLogicalBlocksPerTagline  = constants.DefaultMaxLogicalBlocksPerTagline
	DefaultCacheCapacity               = constants.DefaultCacheCapacity
)
