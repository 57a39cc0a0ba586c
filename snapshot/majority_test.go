package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseMajorityState_S1_ClearMajority(t *testing.T) {
	own := SnapshotsAtHeight{1: "A"}
	peers := map[PeerID]SnapshotsAtHeight{
		"p2": {1: "A"},
		"p3": {1: "A"},
		"p4": {1: "B"},
	}
	got := ChooseMajorityState(own, peers)
	require.Equal(t, map[int64]string{1: "A"}, got)
}

func TestChooseMajorityState_S2_NoQuorumAllWeighedIn(t *testing.T) {
	own := SnapshotsAtHeight{1: "A"}
	peers := map[PeerID]SnapshotsAtHeight{
		"p2": {1: "B"},
		"p3": {1: "C"},
	}
	got := ChooseMajorityState(own, peers)
	require.Equal(t, map[int64]string{1: "A"}, got)
}

func TestChooseMajorityState_S3_SparseHeightNoEntry(t *testing.T) {
	own := SnapshotsAtHeight{1: "A"}
	peers := map[PeerID]SnapshotsAtHeight{
		"p2": {},
		"p3": {},
		"p4": {},
	}
	got := ChooseMajorityState(own, peers)
	require.Empty(t, got)
}

// Property 4: ChooseMajorityState is a pure function of its inputs,
// independent of Go map iteration order.
func TestChooseMajorityState_DeterministicAcrossRuns(t *testing.T) {
	own := SnapshotsAtHeight{1: "A", 2: "X"}
	peers := map[PeerID]SnapshotsAtHeight{
		"p2": {1: "A", 2: "Y"},
		"p3": {1: "B", 2: "Y"},
		"p4": {1: "B"},
	}
	first := ChooseMajorityState(own, peers)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, ChooseMajorityState(own, peers))
	}
}
