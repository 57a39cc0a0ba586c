package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// peerVerifyTimeout bounds a single peer's verify/recent-snapshot round
// trip (spec.md §5 cancellation & timeouts).
const peerVerifyTimeout = 5 * time.Second

// BroadcastConfig carries the operator-tunable knobs of the broadcast &
// verify loop.
type BroadcastConfig struct {
	// RecentSnapshotNumber is the configured length of this node's own
	// recent-snapshot history. Broadcaster does not read it; the bound is
	// enforced by the RecentSnapshotsHolder's own capacity.
	RecentSnapshotNumber int
	// MaxInvalidSnapshotRate is a 0-100 percentage: shouldRunClusterCheck
	// fires once at least this share of verification responses report
	// SnapshotInvalid.
	MaxInvalidSnapshotRate int
	// SnapshotHeightRedownloadDelayInterval feeds ShouldReDownload's
	// belowInterval check.
	SnapshotHeightRedownloadDelayInterval int64
	// PeerFanoutPerSecond caps how fast this node issues peer RPCs during
	// one broadcast or verify round, so a large peer set doesn't turn a
	// single snapshot event into a thundering herd against the network.
	PeerFanoutPerSecond float64
}

func (c BroadcastConfig) fanoutLimit() rate.Limit {
	if c.PeerFanoutPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.PeerFanoutPerSecond)
}

// Broadcaster is C9: it announces newly created snapshots to ready full
// peers, folds their verification responses into a cluster consistency
// check, and on divergence drives C8 through the same single-flight gate
// C10's health check loop shares.
type Broadcaster struct {
	directory  PeerDirectory
	rpc        PeerRPCClient
	recent     *RecentSnapshotsHolder
	redownload *RedownloadDriver
	nodeState  NodeStateService
	cfg        BroadcastConfig
	limiter    *rate.Limiter
}

// NewBroadcaster wires the broadcaster to its collaborators.
func NewBroadcaster(directory PeerDirectory, rpc PeerRPCClient, recent *RecentSnapshotsHolder, redownload *RedownloadDriver, nodeState NodeStateService, cfg BroadcastConfig) *Broadcaster {
	return &Broadcaster{
		directory:  directory,
		rpc:        rpc,
		recent:     recent,
		redownload: redownload,
		nodeState:  nodeState,
		cfg:        cfg,
		limiter:    rate.NewLimiter(cfg.fanoutLimit(), 1),
	}
}

type peerVerification struct {
	peer PeerID
	resp *SnapshotVerification
}

// BroadcastSnapshot is C9's broadcastSnapshot: record the new snapshot
// locally, fan it out to ready full peers for verification, and react if
// enough of them report it invalid relative to their own history.
func (b *Broadcaster) BroadcastSnapshot(ctx context.Context, hash string, height int64) error {
	own := b.recent.Prepend(hash, height)

	peers, err := b.directory.ReadyPeers(PeerNodeTypeFull)
	if err != nil {
		return err
	}

	responses := b.fanoutVerify(ctx, peers, SnapshotCreated{Hash: hash, Height: height})

	verdicts := make([]*SnapshotVerification, len(responses))
	for i, r := range responses {
		verdicts[i] = r.resp
	}
	if !ShouldRunClusterCheck(verdicts, b.cfg.MaxInvalidSnapshotRate) {
		return nil
	}

	cluster := clusterFromVerifications(responses)
	b.reconcile(ctx, own, cluster, peers)
	return nil
}

// VerifyRecentSnapshots is C9's verifyRecentSnapshots: poll ready full
// peers for their recent-snapshot list and reconcile, independent of any
// broadcast event. It shares the redownload driver's single-flight gate
// across its whole body (peer poll plus any resulting episode), not just
// the episode itself, so a health check or another broadcast can't start
// a second reconciliation while this one is still talking to peers.
func (b *Broadcaster) VerifyRecentSnapshots(ctx context.Context) error {
	if !CanVerifyRecentSnapshots(b.nodeState.State()) {
		return nil
	}
	if !b.redownload.TryAcquire() {
		return nil
	}
	defer b.redownload.Release()

	own := b.recent.Snapshot()
	peers, err := b.directory.ReadyPeers(PeerNodeTypeFull)
	if err != nil {
		return err
	}

	cluster := b.fanoutRecent(ctx, peers)
	b.reconcileLocked(ctx, own, cluster, peers)
	return nil
}

// reconcile computes the diff against the cluster and, if a redownload is
// warranted, drives C8 through its own gate (a separate acquire from any
// gate the caller may already hold).
func (b *Broadcaster) reconcile(ctx context.Context, own []RecentSnapshot, cluster []ClusterSnapshots, peers map[PeerID]PeerData) {
	majority, diff := MajorityAndDiff(own, cluster)
	if !ShouldReDownload(own, diff, b.cfg.SnapshotHeightRedownloadDelayInterval) {
		return
	}
	log.Info("snapshot broadcast triggered redownload", "heightGap", belowIntervalGap(own, diff), "toDownload", len(diff.ToDownload))
	if err := b.redownload.Run(ctx, diff, restrictPeers(peers, diff.Peers)); err != nil {
		log.Warn("snapshot broadcast reconciliation skipped", "err", err)
		return
	}
	b.recent.Set(majority)
}

// reconcileLocked is reconcile's variant for a caller that already holds
// the redownload gate (VerifyRecentSnapshots), so it runs the episode
// in-place via RunLocked instead of re-acquiring.
func (b *Broadcaster) reconcileLocked(ctx context.Context, own []RecentSnapshot, cluster []ClusterSnapshots, peers map[PeerID]PeerData) {
	majority, diff := MajorityAndDiff(own, cluster)
	if !ShouldReDownload(own, diff, b.cfg.SnapshotHeightRedownloadDelayInterval) {
		return
	}
	log.Info("snapshot verify triggered redownload", "heightGap", belowIntervalGap(own, diff), "toDownload", len(diff.ToDownload))
	if err := b.redownload.RunLocked(ctx, diff, restrictPeers(peers, diff.Peers)); err != nil {
		log.Warn("snapshot verify reconciliation failed", "err", err)
		return
	}
	b.recent.Set(majority)
}

func (b *Broadcaster) fanoutVerify(ctx context.Context, peers map[PeerID]PeerData, body SnapshotCreated) []peerVerification {
	var mu sync.Mutex
	var out []peerVerification

	g, gctx := errgroup.WithContext(ctx)
	for id, data := range peers {
		id, data := id, data
		g.Go(func() error {
			if err := b.limiter.Wait(gctx); err != nil {
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, peerVerifyTimeout)
			defer cancel()
			resp, err := b.rpc.VerifySnapshot(callCtx, data, body)
			if err != nil {
				log.Debug("peer snapshot verification failed", "peer", id, "err", err)
				resp = nil
			}
			mu.Lock()
			out = append(out, peerVerification{peer: id, resp: resp})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // collector goroutines never return an error; failures downgrade to a nil response.
	return out
}

func (b *Broadcaster) fanoutRecent(ctx context.Context, peers map[PeerID]PeerData) []ClusterSnapshots {
	var mu sync.Mutex
	var out []ClusterSnapshots

	g, gctx := errgroup.WithContext(ctx)
	for id, data := range peers {
		id, data := id, data
		g.Go(func() error {
			if err := b.limiter.Wait(gctx); err != nil {
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, peerVerifyTimeout)
			defer cancel()
			snaps, err := b.rpc.RecentSnapshots(callCtx, data)
			if err != nil {
				log.Debug("peer recent-snapshot fetch failed", "peer", id, "err", err)
				return nil
			}
			mu.Lock()
			out = append(out, ClusterSnapshots{PeerID: id, Snapshots: snaps})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func clusterFromVerifications(responses []peerVerification) []ClusterSnapshots {
	out := make([]ClusterSnapshots, 0, len(responses))
	for _, r := range responses {
		if r.resp == nil {
			continue
		}
		out = append(out, ClusterSnapshots{PeerID: r.peer, Snapshots: r.resp.RecentSnapshot})
	}
	return out
}

func restrictPeers(all map[PeerID]PeerData, allowed []PeerID) map[PeerID]PeerData {
	out := make(map[PeerID]PeerData, len(allowed))
	for _, id := range allowed {
		if data, ok := all[id]; ok {
			out[id] = data
		}
	}
	return out
}

// ShouldRunClusterCheck is true once at least maxInvalidRate percent of
// the verification responses report SnapshotInvalid. A nil
// response (peer unreachable or timed out) does not count as invalid, but
// it does count toward the denominator — silence is not agreement.
func ShouldRunClusterCheck(responses []*SnapshotVerification, maxInvalidRate int) bool {
	if len(responses) == 0 {
		return false
	}
	invalid := 0
	for _, r := range responses {
		if r != nil && r.Status == SnapshotInvalid {
			invalid++
		}
	}
	return invalid*100 >= maxInvalidRate*len(responses)
}
