package consensus

import "errors"

// ErrUnknownStatus is a programmer error: put/update/lookup was asked to
// operate on a Status this store does not recognize (or on StatusNone,
// which is never addressable directly).
var ErrUnknownStatus = errors.New("consensus: unknown status")

// ErrNotReachableViaPut is returned when callers try to Put directly into
// InConsensus; that substore is only reachable via PullForConsensus.
var ErrNotReachableViaPut = errors.New("consensus: InConsensus is not reachable via put")
