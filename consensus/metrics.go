package consensus

// metricsIndex mirrors the list-index scheme the source's getMetricsMap
// used to report per-status counts. The original indexed a 4-element
// [pending, inConsensus, accepted, unknown] list at positions 0/2/3/4 with
// a default of 0 for an out-of-range index, which makes inConsensus,
// accepted and unknown always report zero (spec.md §9's "observed likely
// bug"). LifecycleStore.ReproduceIndexBug selects between that behavior
// and the corrected 0/1/2/3 mapping; see SPEC_FULL.md OQ-1.
type metricsIndex struct {
	pending, inConsensus, accepted, unknown int
}

var (
	correctedIndex = metricsIndex{pending: 0, inConsensus: 1, accepted: 2, unknown: 3}
	buggyIndex     = metricsIndex{pending: 0, inConsensus: 4, accepted: 4, unknown: 4}
)

// at looks up counts[idx], returning 0 when idx falls outside the
// 4-element window — this is what reproduces the bug when idx is 4.
func at(counts [4]int, idx int) int {
	if idx < 0 || idx >= len(counts) {
		return 0
	}
	return counts[idx]
}
