package peer

import (
	"sync"

	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
)

// Directory is an in-memory snapshot.PeerDirectory stand-in. A production
// node would populate this from its real peer discovery/handshake layer
// (out of scope here, per spec); tests and the CLI's dev mode use it
// directly.
type Directory struct {
	mu    sync.RWMutex
	peers map[snapshot.PeerID]entry
}

type entry struct {
	data     snapshot.PeerData
	nodeType snapshot.PeerNodeType
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{peers: make(map[snapshot.PeerID]entry)}
}

// Upsert registers or updates a peer's address and node type.
func (d *Directory) Upsert(id snapshot.PeerID, data snapshot.PeerData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[id] = entry{data: data, nodeType: data.NodeType}
}

// Remove drops a peer, e.g. after repeated RPC failures.
func (d *Directory) Remove(id snapshot.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

// ReadyPeers implements snapshot.PeerDirectory.
func (d *Directory) ReadyPeers(nodeType snapshot.PeerNodeType) (map[snapshot.PeerID]snapshot.PeerData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[snapshot.PeerID]snapshot.PeerData)
	for id, e := range d.peers {
		if e.nodeType == nodeType {
			out[id] = e.data
		}
	}
	return out, nil
}
