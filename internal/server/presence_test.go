package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPresence(t *testing.T) (*Presence, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	presence, err := NewPresence(store, zap.NewNop())
	require.NoError(t, err)
	return presence, store
}

func TestClaimTrimsAndPreservesCase(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	name, err := presence.Claim("  Alice ")
	req.NoError(err)
	req.Equal("Alice", name)
	req.Equal([]string{"Alice"}, presence.Snapshot())
}

func TestClaimRejectsCaseInsensitiveDuplicate(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	_, err := presence.Claim("Alice")
	req.NoError(err)

	_, err = presence.Claim("alice")
	req.ErrorIs(err, ErrNameTaken)

	_, err = presence.Claim(" ALICE ")
	req.ErrorIs(err, ErrNameTaken)

	// A failed claim must not grow the directory.
	req.Equal([]string{"Alice"}, presence.Snapshot())
}

func TestClaimAcceptsDistinctNames(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	_, err := presence.Claim("Alice")
	req.NoError(err)
	_, err = presence.Claim("Bob")
	req.NoError(err)

	req.Equal([]string{"Alice", "Bob"}, presence.Snapshot())
}

func TestReleaseFreesNameForReclaim(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	name, err := presence.Claim("Alice")
	req.NoError(err)

	req.NoError(presence.Release(name))
	req.Empty(presence.Snapshot())

	_, err = presence.Claim("alice")
	req.NoError(err)
}

func TestReleaseAbsentNameIsNoOp(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	_, err := presence.Claim("Alice")
	req.NoError(err)

	req.NoError(presence.Release("Bob"))
	req.Equal([]string{"Alice"}, presence.Snapshot())
}

func TestConcurrentClaimsOnlyOneSucceeds(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	variants := []string{"Alice", "alice", " ALICE ", "aLiCe"}
	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := presence.Claim(variants[i%len(variants)]); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	req.EqualValues(1, successes.Load())
	req.Len(presence.Snapshot(), 1)
}

func TestPresenceSurvivesRestart(t *testing.T) {
	req := require.New(t)
	presence, store := newTestPresence(t)

	_, err := presence.Claim("Alice")
	req.NoError(err)
	_, err = presence.Claim("Bob")
	req.NoError(err)
	req.NoError(presence.Release("Bob"))

	reloaded, err := NewPresence(store, zap.NewNop())
	req.NoError(err)
	req.Equal([]string{"Alice"}, reloaded.Snapshot())

	_, err = reloaded.Claim("alice")
	req.ErrorIs(err, ErrNameTaken)
}

func TestEmptyNameClaimedAsAnyOther(t *testing.T) {
	req := require.New(t)
	presence, _ := newTestPresence(t)

	// Whitespace-only requests trim to the empty string, which the
	// directory treats like any other name: claimable exactly once.
	name, err := presence.Claim("   ")
	req.NoError(err)
	req.Equal("", name)

	_, err = presence.Claim("")
	req.ErrorIs(err, ErrNameTaken)
}
