package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseMajorityStateSnapshots_LargestGroupWins(t *testing.T) {
	listA := []RecentSnapshot{{Hash: "A", Height: 1}}
	listB := []RecentSnapshot{{Hash: "B", Height: 1}}
	cluster := []ClusterSnapshots{
		{PeerID: "p1", Snapshots: listA},
		{PeerID: "p2", Snapshots: listA},
		{PeerID: "p3", Snapshots: listB},
	}
	majority, peers := ChooseMajorityStateSnapshots(cluster)
	require.Equal(t, listA, majority)
	require.ElementsMatch(t, []PeerID{"p1", "p2"}, peers)
}

func TestCompareSnapshotState_S4_DiffReversal(t *testing.T) {
	own := []RecentSnapshot{{Hash: "X", Height: 3}, {Hash: "Y", Height: 2}}
	majority := []RecentSnapshot{{Hash: "Z", Height: 3}, {Hash: "Y", Height: 2}, {Hash: "W", Height: 1}}
	cluster := []ClusterSnapshots{{PeerID: "p1", Snapshots: majority}}

	diff := CompareSnapshotState(own, cluster)

	require.Equal(t, []RecentSnapshot{{Hash: "X", Height: 3}}, diff.ToDelete)
	require.Equal(t,
		[]RecentSnapshot{{Hash: "W", Height: 1}, {Hash: "Z", Height: 3}},
		diff.ToDownload,
	)
}

// Property 5: when every peer agrees with self, the diff is empty and
// shouldReDownload is false.
func TestCompareSnapshotState_Property5_UnanimousAgreement(t *testing.T) {
	own := []RecentSnapshot{{Hash: "A", Height: 1}, {Hash: "B", Height: 2}}
	cluster := make([]ClusterSnapshots, 0, 4)
	for i := 0; i < 4; i++ {
		cluster = append(cluster, ClusterSnapshots{PeerID: PeerID(string(rune('p' + i))), Snapshots: own})
	}
	diff := CompareSnapshotState(own, cluster)
	require.Empty(t, diff.ToDelete)
	require.Empty(t, diff.ToDownload)
	require.False(t, ShouldReDownload(own, diff, 10))
}

func TestShouldReDownload_S5_Misaligned(t *testing.T) {
	own := []RecentSnapshot{{Hash: "A", Height: 5}}
	diff := SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "A", Height: 5}},
		ToDownload: []RecentSnapshot{{Hash: "B", Height: 5}},
		Peers:      []PeerID{"p1"},
	}
	require.True(t, ShouldReDownload(own, diff, 1000))
}

func TestShouldReDownload_BelowInterval(t *testing.T) {
	own := []RecentSnapshot{{Hash: "A", Height: 1}}
	diff := SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "A", Height: 1}},
		ToDownload: []RecentSnapshot{{Hash: "Z", Height: 100}},
		Peers:      []PeerID{"p1"},
	}
	require.True(t, ShouldReDownload(own, diff, 10))
	require.False(t, ShouldReDownload(own, diff, 1000))
}

func TestShouldReDownload_EmptyFieldsShortCircuit(t *testing.T) {
	own := []RecentSnapshot{{Hash: "A", Height: 1}}
	require.False(t, ShouldReDownload(own, SnapshotDiff{}, 0))
	require.False(t, ShouldReDownload(own, SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "A", Height: 1}},
		ToDownload: nil,
		Peers:      []PeerID{"p1"},
	}, 0))
}
