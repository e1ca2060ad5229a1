package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimRejectsDuplicatePort(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim(100, "a"))
	assert.Error(t, r.Claim(100, "b"))
}

func TestReleaseThenReclaimSucceeds(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim(100, "a"))
	r.Release(100)
	assert.NoError(t, r.Claim(100, "b"))
}

func TestOwnerLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim(100, "owner-a"))

	owner, ok := r.Owner(100)
	require.True(t, ok)
	assert.Equal(t, "owner-a", owner)

	_, ok = r.Owner(999)
	assert.False(t, ok)
}

func TestAllocateEphemeralStaysInRange(t *testing.T) {
	r := New()
	for i := 0; i < 1000; i++ {
		port, err := r.AllocateEphemeral()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, EphemeralBase)
		assert.Less(t, port, EphemeralBound)
	}
}

func TestAllocateEphemeralNeverReturnsAClaimedPort(t *testing.T) {
	r := New()
	claimed, err := r.AllocateEphemeral()
	require.NoError(t, err)
	require.NoError(t, r.Claim(claimed, "x"))

	for i := 0; i < 500; i++ {
		port, err := r.AllocateEphemeral()
		require.NoError(t, err)
		assert.NotEqual(t, claimed, port)
	}
}

func TestReleaseAllRemovesOnlyMatchingOwner(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim(1, "a"))
	require.NoError(t, r.Claim(2, "a"))
	require.NoError(t, r.Claim(3, "b"))

	released := r.ReleaseAll(func(o Owner) bool { return o == "a" })
	assert.ElementsMatch(t, []uint64{1, 2}, released)
	assert.Equal(t, 1, r.Count())

	_, ok := r.Owner(3)
	assert.True(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Claim(1, "a"))

	snap := r.Snapshot()
	snap[2] = "injected"

	assert.Equal(t, 1, r.Count())
}
