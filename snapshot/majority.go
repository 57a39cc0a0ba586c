package snapshot

import "sort"

// ChooseMajorityState is C6: a pure function from the local node's created
// snapshots and its peers' proposals to an agreed {height -> hash} state.
// peersSize counts self plus every peer, even peers that did not propose
// anything for a given height — see spec.md §4.C6's note that the
// denominator is always peersSize, not the count of proposers at that
// specific height.
func ChooseMajorityState(own SnapshotsAtHeight, peersProposals map[PeerID]SnapshotsAtHeight) map[int64]string {
	peersSize := len(peersProposals) + 1

	counts := make(map[int64]map[string]int)
	addVote := func(height int64, hash string) {
		byHash, ok := counts[height]
		if !ok {
			byHash = make(map[string]int)
			counts[height] = byHash
		}
		byHash[hash]++
	}
	for height, hash := range own {
		addVote(height, hash)
	}
	for _, proposal := range peersProposals {
		for height, hash := range proposal {
			addVote(height, hash)
		}
	}

	result := make(map[int64]string, len(counts))
	for height, byHash := range counts {
		occurrences := occurrencesFor(byHash)
		if chosen, ok := pickOccurrence(occurrences, peersSize); ok {
			result[height] = chosen
		}
	}
	return result
}

func occurrencesFor(byHash map[string]int) []Occurrence[string] {
	of := 0
	for _, n := range byHash {
		of += n
	}
	out := make([]Occurrence[string], 0, len(byHash))
	for hash, n := range byHash {
		out = append(out, Occurrence[string]{Value: hash, N: n, Of: of})
	}
	// Deterministic tie-break: sort by value ascending before any
	// percentage comparison (spec.md §4.C6 step 3, OQ-2).
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// pickOccurrence applies the clear-majority / full-participation / no-entry
// rule to a height's sorted occurrences.
func pickOccurrence(sorted []Occurrence[string], peersSize int) (string, bool) {
	for _, occ := range sorted {
		if float64(occ.N)/float64(peersSize) >= 0.5 {
			return occ.Value, true
		}
	}

	total := 0
	for _, occ := range sorted {
		total += occ.N
	}
	if total != peersSize {
		return "", false
	}

	bestIdx := -1
	bestPct := -1.0
	for i, occ := range sorted {
		pct := occ.Percentage()
		if pct > bestPct {
			bestPct = pct
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return sorted[bestIdx].Value, true
}
