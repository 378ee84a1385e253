package alloc

import (
	"testing"

	"github.com/ehrlich-b/raidline/internal/types"
	"github.com/stretchr/testify/require"
)

func TestFirstAllocationLandsAtOrigin(t *testing.T) {
	a := New(9, 4096)
	p, err := a.AllocatePair()
	require.NoError(t, err)
	require.Equal(t, types.PhysAddr{Disk: 0, Block: 0}, p.Primary)
	require.Equal(t, types.PhysAddr{Disk: 1, Block: 0}, p.Mirror)
}

func TestMirrorDisjointnessAcrossManyAllocations(t *testing.T) {
	a := New(9, 16)
	seen := map[types.PhysAddr]bool{}
	for i := 0; i < 9*16/2; i++ {
		p, err := a.AllocatePair()
		require.NoError(t, err)
		require.NotEqual(t, p.Primary.Disk, p.Mirror.Disk, "mirror disjointness violated at allocation %d", i)
		require.False(t, seen[p.Primary], "primary address reused: %v", p.Primary)
		require.False(t, seen[p.Mirror], "mirror address reused: %v", p.Mirror)
		seen[p.Primary] = true
		seen[p.Mirror] = true
	}
}

func TestExhaustionFailsCleanly(t *testing.T) {
	a := New(2, 1) // 2 blocks total capacity -> exactly one placement
	_, err := a.AllocatePair()
	require.NoError(t, err)

	_, err = a.AllocatePair()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestExhaustionAtOddCapacityRollsBackPrimary(t *testing.T) {
	// 3 blocks total: one full pair consumes 2, leaving exactly 1 slot,
	// not enough for a second pair.
	a := New(3, 1)
	_, err := a.AllocatePair()
	require.NoError(t, err)

	_, err = a.AllocatePair()
	require.ErrorIs(t, err, ErrExhausted)

	// The failed pair's primary (2, 0) is handed back to the cursor.
	disk, blk, full := a.Cursor()
	require.Equal(t, uint8(2), disk)
	require.Equal(t, uint32(0), blk)
	require.False(t, full)
}
