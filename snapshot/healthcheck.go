package snapshot

import (
	"context"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
)

// HealthChecker is C10: a periodic sweep that asks whether this node is
// still consistent with its peer cluster and triggers reconciliation
// through the exact same path C9's verifyRecentSnapshots uses.
type HealthChecker struct {
	nodeState   NodeStateService
	broadcaster *Broadcaster
	interval    time.Duration
}

// NewHealthChecker wires the periodic checker to the broadcaster whose
// reconciliation logic it shares.
func NewHealthChecker(nodeState NodeStateService, broadcaster *Broadcaster, interval time.Duration) *HealthChecker {
	return &HealthChecker{nodeState: nodeState, broadcaster: broadcaster, interval: interval}
}

// RunClusterCheck blocks, running CheckClusterConsistency on every tick
// until ctx is cancelled. Callers run this in its own goroutine.
func (h *HealthChecker) RunClusterCheck(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.CheckClusterConsistency(ctx); err != nil {
				log.Warn("cluster consistency check failed", "err", err)
			}
		}
	}
}

// CheckClusterConsistency is a single sweep: a no-op off a Ready node
// (spec.md's lifecycle state gates every peer-facing loop), otherwise it
// polls the cluster and reconciles exactly as C9 would.
func (h *HealthChecker) CheckClusterConsistency(ctx context.Context) error {
	if !CanRunClusterCheck(h.nodeState.State()) {
		return nil
	}
	return h.broadcaster.VerifyRecentSnapshots(ctx)
}
