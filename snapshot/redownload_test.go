package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeNodeState struct {
	mu    sync.Mutex
	state NodeState
	log   []NodeState
}

func newFakeNodeState() *fakeNodeState { return &fakeNodeState{state: NodeStateReady} }

func (f *fakeNodeState) State() NodeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeNodeState) SetState(s NodeState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.log = append(f.log, s)
}

type fakeFileStore struct {
	fetchErr, removeErr error
	fetchedAt, removedAt int
	seq                   *int32

	// block, if non-nil, is closed to let a Fetch call proceed — used to
	// widen the single-flight race window in tests.
	block  chan struct{}
	onHold func()
}

func (f *fakeFileStore) Fetch(ctx context.Context, hashes []string, peers map[PeerID]PeerData) error {
	if f.block != nil {
		if f.onHold != nil {
			f.onHold()
		}
		<-f.block
	}
	f.fetchedAt = int(atomic.AddInt32(f.seq, 1))
	return f.fetchErr
}

func (f *fakeFileStore) Remove(ctx context.Context, hashes []string) error {
	f.removedAt = int(atomic.AddInt32(f.seq, 1))
	return f.removeErr
}

func newMetrics() *RedownloadMetrics {
	return NewRedownloadMetrics(prometheus.NewRegistry())
}

func TestRedownloadDriver_FetchPrecedesRemove(t *testing.T) {
	state := newFakeNodeState()
	var seq int32
	store := &fakeFileStore{seq: &seq}
	d := NewRedownloadDriver(state, store, newMetrics())

	diff := SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "old", Height: 1}},
		ToDownload: []RecentSnapshot{{Hash: "new", Height: 2}, {Hash: zeroHash, Height: 0}},
		Peers:      []PeerID{"p1"},
	}
	err := d.Run(context.Background(), diff, nil)
	require.NoError(t, err)
	require.Less(t, store.fetchedAt, store.removedAt)
	require.Equal(t, []NodeState{NodeStateDownloadInProgress, NodeStateReady}, state.log)
}

func TestRedownloadDriver_FailureRestoresReady(t *testing.T) {
	state := newFakeNodeState()
	var seq int32
	store := &fakeFileStore{seq: &seq, fetchErr: errors.New("boom")}
	d := NewRedownloadDriver(state, store, newMetrics())

	diff := SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "old", Height: 1}},
		ToDownload: []RecentSnapshot{{Hash: "new", Height: 2}},
		Peers:      []PeerID{"p1"},
	}
	err := d.Run(context.Background(), diff, nil)
	require.Error(t, err)
	require.Equal(t, NodeStateReady, state.State())
	require.False(t, d.InFlight())
}

// S6: two concurrent episodes on the same driver — exactly one runs, both
// leave the gate clear on return.
func TestRedownloadDriver_SingleFlight(t *testing.T) {
	state := newFakeNodeState()
	var seq int32
	holding := make(chan struct{})
	release := make(chan struct{})
	store := &fakeFileStore{seq: &seq, block: release, onHold: func() { close(holding) }}
	d := NewRedownloadDriver(state, store, newMetrics())

	diff := SnapshotDiff{
		ToDelete:   []RecentSnapshot{{Hash: "old", Height: 1}},
		ToDownload: []RecentSnapshot{{Hash: "new", Height: 2}},
		Peers:      []PeerID{"p1"},
	}

	var wg sync.WaitGroup
	var firstErr, secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = d.Run(context.Background(), diff, nil)
	}()

	<-holding // first call is now inside Fetch, holding the gate.
	secondErr = d.Run(context.Background(), diff, nil)
	require.ErrorIs(t, secondErr, ErrRedownloadInFlight)
	require.True(t, d.InFlight())

	close(release)
	wg.Wait()

	require.NoError(t, firstErr)
	require.False(t, d.InFlight())
}
