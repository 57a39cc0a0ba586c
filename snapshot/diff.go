package snapshot

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/elgohr-update/porkotron-constellation-1/internal/mathutil"
)

// ChooseMajorityStateSnapshots is the list-grouping half of C7: it groups
// peers by their entire recent-snapshot list (exact match) and returns the
// largest group's list plus the set of peers that hold it. Ties are broken
// deterministically by the lexicographically smallest group key, not
// arbitrarily, so this stays pure.
func ChooseMajorityStateSnapshots(cluster []ClusterSnapshots) ([]RecentSnapshot, []PeerID) {
	type group struct {
		snapshots []RecentSnapshot
		peers     []PeerID
	}
	groups := make(map[string]*group)
	var keys []string
	for _, c := range cluster {
		key := snapshotListKey(c.Snapshots)
		g, ok := groups[key]
		if !ok {
			g = &group{snapshots: c.Snapshots}
			groups[key] = g
			keys = append(keys, key)
		}
		g.peers = append(g.peers, c.PeerID)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys) // deterministic tie-break.

	bestKey := keys[0]
	bestCount := len(groups[bestKey].peers)
	for _, k := range keys[1:] {
		if n := len(groups[k].peers); n > bestCount {
			bestKey, bestCount = k, n
		}
	}
	best := groups[bestKey]
	return best.snapshots, best.peers
}

func snapshotListKey(snaps []RecentSnapshot) string {
	var b strings.Builder
	for _, s := range snaps {
		fmt.Fprintf(&b, "%d:%s|", s.Height, s.Hash)
	}
	return b.String()
}

// CompareSnapshotState is C7's diff computation: the majority list from
// ChooseMajorityStateSnapshots against own, expressed as what to delete and
// what to download.
func CompareSnapshotState(own []RecentSnapshot, cluster []ClusterSnapshots) SnapshotDiff {
	majority, peers := ChooseMajorityStateSnapshots(cluster)
	return diffFrom(own, majority, peers)
}

// MajorityAndDiff is CompareSnapshotState plus the majority list itself, for
// callers (C9, C10) that need to overwrite their local recent-snapshot
// state with the agreed majority once a redownload completes.
func MajorityAndDiff(own []RecentSnapshot, cluster []ClusterSnapshots) ([]RecentSnapshot, SnapshotDiff) {
	majority, peers := ChooseMajorityStateSnapshots(cluster)
	return majority, diffFrom(own, majority, peers)
}

func diffFrom(own, majority []RecentSnapshot, peers []PeerID) SnapshotDiff {
	majoritySet := mapset.NewThreadUnsafeSet[RecentSnapshot](majority...)
	ownSet := mapset.NewThreadUnsafeSet[RecentSnapshot](own...)

	toDelete := make([]RecentSnapshot, 0, len(own))
	for _, s := range own {
		if !majoritySet.Contains(s) {
			toDelete = append(toDelete, s)
		}
	}

	toDownload := make([]RecentSnapshot, 0, len(majority))
	for _, s := range majority {
		if !ownSet.Contains(s) {
			toDownload = append(toDownload, s)
		}
	}
	reverse(toDownload)

	return SnapshotDiff{ToDelete: toDelete, ToDownload: toDownload, Peers: peers}
}

func reverse(s []RecentSnapshot) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// ShouldReDownload is C7's threshold logic: any empty field means no
// redownload; otherwise true if the node is far behind (belowInterval) or
// has forked at a height shared with the majority (misaligned).
func ShouldReDownload(own []RecentSnapshot, diff SnapshotDiff, redownloadDelayInterval int64) bool {
	if len(diff.ToDelete) == 0 || len(diff.ToDownload) == 0 || len(diff.Peers) == 0 {
		return false
	}

	ownMax := maxHeight(own)
	downloadMax := maxHeight(diff.ToDownload)
	belowInterval := ownMax+redownloadDelayInterval < downloadMax

	return belowInterval || misaligned(own, diff)
}

func maxHeight(snaps []RecentSnapshot) int64 {
	var max int64
	for i, s := range snaps {
		if i == 0 || s.Height > max {
			max = s.Height
		}
	}
	return max
}

// misaligned reports whether some own entry shares a height with a
// toDelete/toDownload entry but disagrees on the hash — a same-height fork.
func misaligned(own []RecentSnapshot, diff SnapshotDiff) bool {
	divergent := make(map[int64]map[string]bool)
	record := func(s RecentSnapshot) {
		if divergent[s.Height] == nil {
			divergent[s.Height] = make(map[string]bool)
		}
		divergent[s.Height][s.Hash] = true
	}
	for _, s := range diff.ToDelete {
		record(s)
	}
	for _, s := range diff.ToDownload {
		record(s)
	}

	for _, s := range own {
		hashesAtHeight, ok := divergent[s.Height]
		if !ok {
			continue
		}
		for hash := range hashesAtHeight {
			if hash != s.Hash {
				return true
			}
		}
	}
	return false
}

// belowIntervalGap is the absolute height gap between own and toDownload
// maxima, the quantity the belowInterval check compares against; the
// broadcaster logs it when it triggers a redownload.
func belowIntervalGap(own []RecentSnapshot, diff SnapshotDiff) int64 {
	return mathutil.AbsoluteDifference(maxHeight(own), maxHeight(diff.ToDownload))
}
