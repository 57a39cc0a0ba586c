// Package snapshot implements the snapshot majority & redownload engine:
// periodically comparing a node's recent snapshot history against its
// peers, computing a majority state, and driving recovery when the local
// view diverges.
package snapshot

// PeerID identifies a peer in the Peer Directory.
type PeerID string

// RecentSnapshot is a periodic materialized state marker. Height is
// monotone non-decreasing per honest node.
type RecentSnapshot struct {
	Hash   string
	Height int64
}

// SnapshotsAtHeight maps height to the (unique, within one node's view)
// hash proposed at that height.
type SnapshotsAtHeight map[int64]string

// PeerProposal pairs a peer with its proposed SnapshotsAtHeight.
type PeerProposal struct {
	PeerID    PeerID
	Snapshots SnapshotsAtHeight
}

// Occurrence records that Value was proposed N times out of Of total
// proposals at a given height.
type Occurrence[T comparable] struct {
	Value T
	N     int
	Of    int
}

// Percentage returns N/Of as a float, or 0 if Of is 0.
func (o Occurrence[T]) Percentage() float64 {
	if o.Of == 0 {
		return 0
	}
	return float64(o.N) / float64(o.Of)
}

// SnapshotDiff describes divergence from the majority: what the local node
// should delete, what it should download, and which peers agreed on the
// majority. An empty ToDelete or ToDownload means "no redownload".
type SnapshotDiff struct {
	ToDelete   []RecentSnapshot
	ToDownload []RecentSnapshot
	Peers      []PeerID
}

// ClusterSnapshots pairs a peer with its recent-snapshot list, the input
// shape chooseMajorityState (C7) groups by identical list contents.
type ClusterSnapshots struct {
	PeerID    PeerID
	Snapshots []RecentSnapshot
}
