package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrRedownloadInFlight is returned by Run when another episode is already
// in progress (I5: single-flight redownload).
var ErrRedownloadInFlight = errors.New("snapshot: redownload already in flight")

// zeroHash is the sentinel snapshot hash that is never fetched from the
// file store (spec.md §4.C8 step 2).
const zeroHash = ""

// RedownloadMetrics are the two counters spec.md §6 names explicitly.
type RedownloadMetrics struct {
	Finished prometheus.Counter
	Errors   prometheus.Counter
}

// NewRedownloadMetrics registers the redownload counters against reg.
func NewRedownloadMetrics(reg prometheus.Registerer) *RedownloadMetrics {
	m := &RedownloadMetrics{
		Finished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_redownload_finished_total",
			Help: "Completed redownload episodes.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_redownload_error_total",
			Help: "Failed redownload episodes.",
		}),
	}
	reg.MustRegister(m.Finished, m.Errors)
	return m
}

// RedownloadObserver lets callers watch episode boundaries without
// coupling to the driver's internals. Every callback is optional.
type RedownloadObserver struct {
	OnStart   func(diff SnapshotDiff)
	OnSuccess func(diff SnapshotDiff)
	OnFailure func(diff SnapshotDiff, err error)
}

// RedownloadDriver is C8: it serializes redownload episodes behind an
// atomic single-flight gate, toggles the node's lifecycle state, and
// drives the snapshot file store's fetch-then-remove sequence.
type RedownloadDriver struct {
	nodeState NodeStateService
	fileStore SnapshotFileStore
	metrics   *RedownloadMetrics
	Observer  RedownloadObserver

	pending atomic.Bool
}

// NewRedownloadDriver wires the driver to its node-state and file-store
// collaborators.
func NewRedownloadDriver(nodeState NodeStateService, fileStore SnapshotFileStore, metrics *RedownloadMetrics) *RedownloadDriver {
	return &RedownloadDriver{nodeState: nodeState, fileStore: fileStore, metrics: metrics}
}

// TryAcquire attempts the single-flight gate; callers that lose the race
// must treat it as "already running" and not retry the CAS themselves.
func (d *RedownloadDriver) TryAcquire() bool {
	return d.pending.CompareAndSwap(false, true)
}

// InFlight reports whether an episode currently holds the gate.
func (d *RedownloadDriver) InFlight() bool { return d.pending.Load() }

// Release clears the single-flight gate. Callers that acquired it via
// TryAcquire themselves (C9's verifyRecentSnapshots holds the gate across a
// peer poll, not just the episode) must call this on every exit path.
func (d *RedownloadDriver) Release() { d.pending.Store(false) }

// Run executes one redownload episode if the single-flight gate is free.
// It returns ErrRedownloadInFlight without touching node state or the file
// store if another episode already holds the gate.
func (d *RedownloadDriver) Run(ctx context.Context, diff SnapshotDiff, restrictedPeers map[PeerID]PeerData) error {
	if !d.TryAcquire() {
		return ErrRedownloadInFlight
	}
	defer d.Release()
	return d.RunLocked(ctx, diff, restrictedPeers)
}

// RunLocked runs one episode assuming the caller already holds the
// single-flight gate (acquired via TryAcquire). It does not release the
// gate itself; use this from a caller whose own critical section spans
// more than the episode (e.g. C9's verifyRecentSnapshots polls peers under
// the same gate before deciding whether to call this at all).
func (d *RedownloadDriver) RunLocked(ctx context.Context, diff SnapshotDiff, restrictedPeers map[PeerID]PeerData) error {
	if d.Observer.OnStart != nil {
		d.Observer.OnStart(diff)
	}

	if err := d.runEpisode(ctx, diff, restrictedPeers); err != nil {
		d.metrics.Errors.Inc()
		d.nodeState.SetState(NodeStateReady)
		log.Error("snapshot redownload failed", "err", err, "toDownload", len(diff.ToDownload), "toDelete", len(diff.ToDelete))
		if d.Observer.OnFailure != nil {
			d.Observer.OnFailure(diff, err)
		}
		return err
	}

	d.metrics.Finished.Inc()
	d.nodeState.SetState(NodeStateReady)
	if d.Observer.OnSuccess != nil {
		d.Observer.OnSuccess(diff)
	}
	return nil
}

func (d *RedownloadDriver) runEpisode(ctx context.Context, diff SnapshotDiff, peers map[PeerID]PeerData) error {
	d.nodeState.SetState(NodeStateDownloadInProgress)

	toFetch := hashesExcludingZero(diff.ToDownload)
	if err := d.fileStore.Fetch(ctx, toFetch, peers); err != nil {
		return fmt.Errorf("fetch snapshots: %w", err)
	}

	toRemove := hashesOf(diff.ToDelete)
	if err := d.fileStore.Remove(ctx, toRemove); err != nil {
		return fmt.Errorf("remove stale snapshots: %w", err)
	}
	return nil
}

func hashesOf(snaps []RecentSnapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Hash
	}
	return out
}

func hashesExcludingZero(snaps []RecentSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if s.Hash == zeroHash {
			continue
		}
		out = append(out, s.Hash)
	}
	return out
}
