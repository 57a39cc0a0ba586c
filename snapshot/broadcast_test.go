package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	peers map[PeerID]PeerData
	err   error
}

func (f *fakeDirectory) ReadyPeers(nodeType PeerNodeType) (map[PeerID]PeerData, error) {
	return f.peers, f.err
}

type fakeRPCClient struct {
	verify func(peer PeerData, body SnapshotCreated) (*SnapshotVerification, error)
	recent func(peer PeerData) ([]RecentSnapshot, error)
}

func (f *fakeRPCClient) VerifySnapshot(ctx context.Context, peer PeerData, body SnapshotCreated) (*SnapshotVerification, error) {
	return f.verify(peer, body)
}

func (f *fakeRPCClient) RecentSnapshots(ctx context.Context, peer PeerData) ([]RecentSnapshot, error) {
	return f.recent(peer)
}

func TestShouldRunClusterCheck_Threshold(t *testing.T) {
	responses := []*SnapshotVerification{
		{Status: SnapshotInvalid},
		{Status: SnapshotInvalid},
		{Status: SnapshotCorrect},
		{Status: SnapshotCorrect},
	}
	require.True(t, ShouldRunClusterCheck(responses, 50))
	require.False(t, ShouldRunClusterCheck(responses, 51))
}

func TestShouldRunClusterCheck_NilResponsesCountTowardDenominator(t *testing.T) {
	responses := []*SnapshotVerification{nil, nil, {Status: SnapshotInvalid}}
	require.False(t, ShouldRunClusterCheck(responses, 50))
	require.True(t, ShouldRunClusterCheck(responses, 33))
}

func TestBroadcastSnapshot_NoReconciliationWhenClusterAgrees(t *testing.T) {
	dir := &fakeDirectory{peers: map[PeerID]PeerData{
		"p1": {Endpoint: "http://p1"},
		"p2": {Endpoint: "http://p2"},
	}}
	own := []RecentSnapshot{{Hash: "genesis", Height: 0}}
	rpc := &fakeRPCClient{
		verify: func(peer PeerData, body SnapshotCreated) (*SnapshotVerification, error) {
			return &SnapshotVerification{Status: SnapshotCorrect, RecentSnapshot: []RecentSnapshot{
				{Hash: "new", Height: 1}, {Hash: "genesis", Height: 0},
			}}, nil
		},
	}
	state := newFakeNodeState()
	var seq int32
	store := &fakeFileStore{seq: &seq}
	recent := NewRecentSnapshotsHolder(10)
	recent.Set(own)
	driver := NewRedownloadDriver(state, store, NewRedownloadMetrics(prometheus.NewRegistry()))
	b := NewBroadcaster(dir, rpc, recent, driver, state, BroadcastConfig{
		RecentSnapshotNumber:                  10,
		MaxInvalidSnapshotRate:                50,
		SnapshotHeightRedownloadDelayInterval: 1000,
	})

	err := b.BroadcastSnapshot(context.Background(), "new", 1)
	require.NoError(t, err)
	require.False(t, driver.InFlight())
	require.Equal(t, 0, store.fetchedAt)
}

func TestBroadcastSnapshot_ReconciliationTriggersRedownload(t *testing.T) {
	dir := &fakeDirectory{peers: map[PeerID]PeerData{
		"p1": {Endpoint: "http://p1"},
		"p2": {Endpoint: "http://p2"},
		"p3": {Endpoint: "http://p3"},
	}}
	majority := []RecentSnapshot{{Hash: "majorityHash", Height: 500}}
	rpc := &fakeRPCClient{
		verify: func(peer PeerData, body SnapshotCreated) (*SnapshotVerification, error) {
			return &SnapshotVerification{Status: SnapshotInvalid, RecentSnapshot: majority}, nil
		},
	}
	state := newFakeNodeState()
	var seq int32
	store := &fakeFileStore{seq: &seq}
	recent := NewRecentSnapshotsHolder(10)
	recent.Set([]RecentSnapshot{{Hash: "stale", Height: 1}})
	driver := NewRedownloadDriver(state, store, NewRedownloadMetrics(prometheus.NewRegistry()))
	b := NewBroadcaster(dir, rpc, recent, driver, state, BroadcastConfig{
		RecentSnapshotNumber:                  10,
		MaxInvalidSnapshotRate:                50,
		SnapshotHeightRedownloadDelayInterval: 1,
	})

	err := b.BroadcastSnapshot(context.Background(), "stale", 1)
	require.NoError(t, err)
	require.False(t, driver.InFlight())
	require.Greater(t, store.fetchedAt, 0)
	require.Equal(t, majority, recent.Snapshot())
}

func TestBroadcastSnapshot_UnreachablePeerDowngradesToNilResponse(t *testing.T) {
	dir := &fakeDirectory{peers: map[PeerID]PeerData{"p1": {Endpoint: "http://p1"}}}
	rpc := &fakeRPCClient{
		verify: func(peer PeerData, body SnapshotCreated) (*SnapshotVerification, error) {
			return nil, errors.New("connection refused")
		},
	}
	state := newFakeNodeState()
	var seq int32
	store := &fakeFileStore{seq: &seq}
	recent := NewRecentSnapshotsHolder(10)
	driver := NewRedownloadDriver(state, store, NewRedownloadMetrics(prometheus.NewRegistry()))
	b := NewBroadcaster(dir, rpc, recent, driver, state, BroadcastConfig{RecentSnapshotNumber: 10, MaxInvalidSnapshotRate: 50})

	err := b.BroadcastSnapshot(context.Background(), "new", 1)
	require.NoError(t, err)
}

func TestVerifyRecentSnapshots_SkippedWhenNotReady(t *testing.T) {
	state := newFakeNodeState()
	state.SetState(NodeStateDownloadInProgress)
	dir := &fakeDirectory{peers: map[PeerID]PeerData{"p1": {}}}
	rpc := &fakeRPCClient{recent: func(peer PeerData) ([]RecentSnapshot, error) {
		t.Fatal("must not poll peers while not Ready")
		return nil, nil
	}}
	var seq int32
	store := &fakeFileStore{seq: &seq}
	recent := NewRecentSnapshotsHolder(10)
	driver := NewRedownloadDriver(state, store, NewRedownloadMetrics(prometheus.NewRegistry()))
	b := NewBroadcaster(dir, rpc, recent, driver, state, BroadcastConfig{RecentSnapshotNumber: 10})

	require.NoError(t, b.VerifyRecentSnapshots(context.Background()))
}

func TestVerifyRecentSnapshots_NoOpWhenGateHeld(t *testing.T) {
	state := newFakeNodeState()
	dir := &fakeDirectory{peers: map[PeerID]PeerData{"p1": {}}}
	rpc := &fakeRPCClient{}
	var seq int32
	store := &fakeFileStore{seq: &seq}
	recent := NewRecentSnapshotsHolder(10)
	driver := NewRedownloadDriver(state, store, NewRedownloadMetrics(prometheus.NewRegistry()))
	require.True(t, driver.TryAcquire())
	defer driver.Release()

	b := NewBroadcaster(dir, rpc, recent, driver, state, BroadcastConfig{RecentSnapshotNumber: 10})
	require.NoError(t, b.VerifyRecentSnapshots(context.Background()))
}
