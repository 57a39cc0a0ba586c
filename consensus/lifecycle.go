package consensus

// LifecycleStore is the consensus item lifecycle machine (C4): four
// substores (Pending, InConsensus, Accepted, Unknown) plus a merkle pool,
// each mutation to InConsensus/Accepted/Unknown/MerklePool serialized
// through its named lock (C3). See the state diagram in spec.md §4.C4.
type LifecycleStore[T Object] struct {
	pending     *MemPool[T]
	inConsensus *Store[T]
	accepted    *Store[T]
	unknown     *Store[T]
	merkle      *MerklePool
	locks       *LockRegistry

	// ReproduceIndexBug selects getMetricsMap's index scheme. false (the
	// default) uses the corrected 0/1/2/3 mapping; true reproduces the
	// observed source bug where inConsensus/accepted/unknown always read
	// zero. See SPEC_FULL.md OQ-1.
	ReproduceIndexBug bool
}

// NewLifecycleStore builds a store with the given per-substore capacity
// for InConsensus/Accepted/Unknown (spec.md recommends DefaultSubstoreCapacity).
func NewLifecycleStore[T Object](substoreCapacity int) *LifecycleStore[T] {
	return &LifecycleStore[T]{
		pending:     NewMemPool[T](),
		inConsensus: NewStore[T](substoreCapacity),
		accepted:    NewStore[T](substoreCapacity),
		unknown:     NewStore[T](substoreCapacity),
		merkle:      NewMerklePool(),
		locks: NewLockRegistry(
			LockInConsensusUpdate,
			LockAcceptedUpdate,
			LockUnknownUpdate,
			LockMerklePoolUpdate,
		),
	}
}

// Put inserts a into Pending, unlocked (the mempool is internally
// concurrent).
func (s *LifecycleStore[T]) Put(a T) {
	s.pending.Put(a.Hash(), a)
}

// PutStatus inserts a into the named status's substore. Pending is
// unlocked; Accepted/Unknown go through their named lock; InConsensus is
// only reachable via PullForConsensus.
func (s *LifecycleStore[T]) PutStatus(a T, status Status) error {
	switch status {
	case StatusPending:
		s.pending.Put(a.Hash(), a)
		return nil
	case StatusAccepted:
		s.locks.WithLock(LockAcceptedUpdate, func() { s.accepted.Put(a.Hash(), a) })
		return nil
	case StatusUnknown:
		s.locks.WithLock(LockUnknownUpdate, func() { s.unknown.Put(a.Hash(), a) })
		return nil
	case StatusInConsensus:
		return ErrNotReachableViaPut
	default:
		return ErrUnknownStatus
	}
}

// UpdateStatus applies fn to the value at key in status's substore,
// inserting empty first if key is absent, and returns the resulting value.
func (s *LifecycleStore[T]) UpdateStatus(key string, fn func(T) T, empty T, status Status) (T, error) {
	switch status {
	case StatusPending:
		return s.pending.UpdateOrInsert(key, fn, empty), nil
	case StatusInConsensus:
		var out T
		s.locks.WithLock(LockInConsensusUpdate, func() { out = s.inConsensus.UpdateOrInsert(key, fn, empty) })
		return out, nil
	case StatusAccepted:
		var out T
		s.locks.WithLock(LockAcceptedUpdate, func() { out = s.accepted.UpdateOrInsert(key, fn, empty) })
		return out, nil
	case StatusUnknown:
		var out T
		s.locks.WithLock(LockUnknownUpdate, func() { out = s.unknown.UpdateOrInsert(key, fn, empty) })
		return out, nil
	default:
		var zero T
		return zero, ErrUnknownStatus
	}
}

// Update is the status-oblivious form: it tries Pending, InConsensus,
// Accepted, then Unknown in order, stopping at the first store that
// contains key, and returns the updated value (or the zero value and
// false if key was absent everywhere).
func (s *LifecycleStore[T]) Update(key string, fn func(T) T) (T, bool) {
	if v, ok := s.pending.Update(key, fn); ok {
		return v, true
	}

	var v T
	var ok bool
	s.locks.WithLock(LockInConsensusUpdate, func() { v, ok = s.inConsensus.Update(key, fn) })
	if ok {
		return v, true
	}
	s.locks.WithLock(LockAcceptedUpdate, func() { v, ok = s.accepted.Update(key, fn) })
	if ok {
		return v, true
	}
	s.locks.WithLock(LockUnknownUpdate, func() { v, ok = s.unknown.Update(key, fn) })
	if ok {
		return v, true
	}

	var zero T
	return zero, false
}

// Accept moves a into Accepted and removes it from InConsensus and Unknown
// (I3). Each removal runs under its own named lock, never two at once, so
// Accept is idempotent and safe to race with clearInConsensus/returnToPending
// on the same hash.
func (s *LifecycleStore[T]) Accept(a T) {
	s.locks.WithLock(LockAcceptedUpdate, func() { s.accepted.Put(a.Hash(), a) })
	s.locks.WithLock(LockInConsensusUpdate, func() { s.inConsensus.Remove(a.Hash()) })
	s.locks.WithLock(LockUnknownUpdate, func() { s.unknown.Remove(a.Hash()) })
}

// PullForConsensus pulls up to count items from Pending and transfers them
// into InConsensus, returning the list actually transferred.
func (s *LifecycleStore[T]) PullForConsensus(count int) []T {
	items, ok := s.pending.Pull(count)
	if !ok {
		return nil
	}
	s.locks.WithLock(LockInConsensusUpdate, func() {
		for _, it := range items {
			s.inConsensus.Put(it.Hash(), it)
		}
	})
	return items
}

// ClearInConsensus moves every hash present in InConsensus into Unknown.
// Hashes absent from InConsensus are silently skipped.
func (s *LifecycleStore[T]) ClearInConsensus(hashes []string) {
	for _, h := range hashes {
		var v T
		var ok bool
		s.locks.WithLock(LockInConsensusUpdate, func() {
			v, ok = s.inConsensus.Lookup(h)
			if ok {
				s.inConsensus.Remove(h)
			}
		})
		if ok {
			s.locks.WithLock(LockUnknownUpdate, func() { s.unknown.Put(h, v) })
		}
	}
}

// ReturnToPending moves every hash present in InConsensus back into
// Pending. Hashes absent from InConsensus are silently skipped.
func (s *LifecycleStore[T]) ReturnToPending(hashes []string) {
	for _, h := range hashes {
		var v T
		var ok bool
		s.locks.WithLock(LockInConsensusUpdate, func() {
			v, ok = s.inConsensus.Lookup(h)
			if ok {
				s.inConsensus.Remove(h)
			}
		})
		if ok {
			s.pending.Put(h, v)
		}
	}
}

// Lookup probes Accepted, InConsensus, Pending, then Unknown in that
// order and returns the first hit along with its status.
func (s *LifecycleStore[T]) Lookup(key string) (T, Status, bool) {
	if v, ok := s.accepted.Lookup(key); ok {
		return v, StatusAccepted, true
	}
	if v, ok := s.inConsensus.Lookup(key); ok {
		return v, StatusInConsensus, true
	}
	if v, ok := s.pending.Lookup(key); ok {
		return v, StatusPending, true
	}
	if v, ok := s.unknown.Lookup(key); ok {
		return v, StatusUnknown, true
	}
	var zero T
	return zero, StatusNone, false
}

// LookupStatus is the targeted lookup: it probes only the named substore.
func (s *LifecycleStore[T]) LookupStatus(key string, status Status) (T, bool, error) {
	switch status {
	case StatusPending:
		v, ok := s.pending.Lookup(key)
		return v, ok, nil
	case StatusInConsensus:
		v, ok := s.inConsensus.Lookup(key)
		return v, ok, nil
	case StatusAccepted:
		v, ok := s.accepted.Lookup(key)
		return v, ok, nil
	case StatusUnknown:
		v, ok := s.unknown.Lookup(key)
		return v, ok, nil
	default:
		var zero T
		return zero, false, ErrUnknownStatus
	}
}

// Contains reports whether key is present in any of the four substores.
func (s *LifecycleStore[T]) Contains(key string) bool {
	return s.pending.Contains(key) ||
		s.inConsensus.Contains(key) ||
		s.accepted.Contains(key) ||
		s.unknown.Contains(key)
}

// Count returns the total number of items across all four substores.
func (s *LifecycleStore[T]) Count() int {
	return s.pending.Size() + s.inConsensus.Size() + s.accepted.Size() + s.unknown.Size()
}

// CountStatus returns the number of items in the named substore.
func (s *LifecycleStore[T]) CountStatus(status Status) (int, error) {
	switch status {
	case StatusPending:
		return s.pending.Size(), nil
	case StatusInConsensus:
		return s.inConsensus.Size(), nil
	case StatusAccepted:
		return s.accepted.Size(), nil
	case StatusUnknown:
		return s.unknown.Size(), nil
	default:
		return 0, ErrUnknownStatus
	}
}

// GetMetricsMap reports per-status counts. See ReproduceIndexBug's doc
// comment and SPEC_FULL.md OQ-1 for why this is configurable rather than
// a straight 1:1 mapping.
func (s *LifecycleStore[T]) GetMetricsMap() map[string]int {
	counts := [4]int{s.pending.Size(), s.inConsensus.Size(), s.accepted.Size(), s.unknown.Size()}
	idx := correctedIndex
	if s.ReproduceIndexBug {
		idx = buggyIndex
	}
	return map[string]int{
		"pending":     at(counts, idx.pending),
		"inConsensus": at(counts, idx.inConsensus),
		"accepted":    at(counts, idx.accepted),
		"unknown":     at(counts, idx.unknown),
	}
}

// FindHashesByMerkleRoot delegates to the merkle pool (C5).
func (s *LifecycleStore[T]) FindHashesByMerkleRoot(root string) []string {
	return s.merkle.FindByRoot(root)
}

// AddMerkleRoot records that hash participates in root, under the merkle
// pool's named lock.
func (s *LifecycleStore[T]) AddMerkleRoot(root, hash string) {
	s.locks.WithLock(LockMerklePoolUpdate, func() { s.merkle.Add(root, hash) })
}

// GetLast20Accepted returns the newest 20 accepted items by insertion order.
func (s *LifecycleStore[T]) GetLast20Accepted() []T {
	return s.accepted.GetLastN(20)
}

// Close releases LifecycleStore's resources. It is a no-op today — every
// substore is purely in-memory — but gives LifecycleStore the same
// construct/Close lifecycle shape as the teacher's other service-shaped
// components, so callers can treat it uniformly (e.g. defer Close() in
// cmd/constellationd) regardless of what a future substore backend needs.
func (s *LifecycleStore[T]) Close() error {
	return nil
}
