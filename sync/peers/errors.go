package peers

import "errors"

var (
	// ErrNoPeerAvailable is returned by Borrow when no peer satisfied the request before the
	// timeout elapsed. It is an expected outcome, callers should retry later or give up.
	ErrNoPeerAvailable = errors.New("peers: no peer available")
	// ErrCancelled is returned by Borrow when the caller's context was canceled while waiting.
	ErrCancelled = errors.New("peers: borrow cancelled")
	// ErrCapacityExceeded is returned by AddPeer when the pool already holds PeerMaxCount peers.
	ErrCapacityExceeded = errors.New("peers: capacity exceeded")
	// ErrUnknownAllocation is returned by Free for allocations the pool does not track, most
	// likely a double free.
	ErrUnknownAllocation = errors.New("peers: unknown allocation")
	// ErrAllocationInvalidated is returned for allocations whose peer was removed from the pool.
	ErrAllocationInvalidated = errors.New("peers: allocation invalidated")
	// ErrPeerExists is returned by AddPeer for a peer that is already in the pool.
	ErrPeerExists = errors.New("peers: peer already added")
	// ErrPeerBlacklisted is returned by AddPeer for peers that were evicted for misbehaviour.
	ErrPeerBlacklisted = errors.New("peers: peer is blacklisted")
	// ErrPeerNotFound is returned by operations that address a peer the pool does not know.
	ErrPeerNotFound = errors.New("peers: peer not found")
	// ErrPoolStopped is returned for operations issued after Stop.
	ErrPoolStopped = errors.New("peers: pool stopped")

	errNoDifficulty = errors.New("peers: status without total difficulty")
)
