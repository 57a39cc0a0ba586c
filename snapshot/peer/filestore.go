package peer

import (
	"context"
	"sync"

	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
)

// FileStore is an in-memory snapshot.SnapshotFileStore stand-in. The
// actual on-disk fetch/remove of snapshot archives is out of scope (per
// spec); this just records what was asked for, so the CLI's dev mode and
// tests can run the redownload driver end to end without a real
// filesystem or peer transfer.
type FileStore struct {
	mu       sync.Mutex
	held     map[string]bool
	fetchErr error
}

// NewFileStore returns an empty store.
func NewFileStore() *FileStore {
	return &FileStore{held: make(map[string]bool)}
}

// Fetch records the requested hashes as held. peers is accepted to match
// the interface; a real implementation would restrict its source set to
// them.
func (f *FileStore) Fetch(ctx context.Context, hashes []string, peers map[snapshot.PeerID]snapshot.PeerData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return f.fetchErr
	}
	for _, h := range hashes {
		f.held[h] = true
	}
	return nil
}

// Remove drops the requested hashes.
func (f *FileStore) Remove(ctx context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range hashes {
		delete(f.held, h)
	}
	return nil
}

// Held reports whether a hash is currently considered present, for tests
// and the CLI's status command.
func (f *FileStore) Held(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[hash]
}
