package peer

import (
	"sync"

	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
)

// NodeState is an in-memory snapshot.NodeStateService stand-in. A real
// node wires this to whatever owns its actual lifecycle state machine
// (out of scope here, per spec); this is enough for the CLI's dev mode
// and for tests that need a live, mutable implementation rather than a
// fake.
type NodeState struct {
	mu    sync.RWMutex
	state snapshot.NodeState
}

// NewNodeState starts in NodeStateStarting.
func NewNodeState() *NodeState {
	return &NodeState{state: snapshot.NodeStateStarting}
}

func (n *NodeState) State() snapshot.NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *NodeState) SetState(s snapshot.NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = s
}
