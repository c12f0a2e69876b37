package peers

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Status is the chain view a peer declares.
type Status struct {
	TotalDifficulty *big.Int
	HeadNumber      uint64
	HeadHash        common.Hash
}

// SyncPeer is an established wire-level connection to a remote node.
type SyncPeer interface {
	// ID is the stable identity of the remote node.
	ID() peer.ID
	// ClientID is the remote client's self-reported version string.
	ClientID() string
	// Status returns the chain status the peer declared during the handshake.
	Status() Status
	// ChainStatus asks the peer for its total difficulty and height at the given head.
	// The zero hash asks for the peer's current head.
	ChainStatus(ctx context.Context, head common.Hash) (Status, error)
	// Disconnect closes the underlying connection.
	Disconnect(reason string) error
}

// ChainHead reports the local node's best known chain head.
type ChainHead interface {
	Head() Status
}

// PeerInfo is a point-in-time view of a pooled peer.
type PeerInfo struct {
	ID              peer.ID
	ClientID        string
	TotalDifficulty *big.Int
	HeadNumber      uint64

	Allocated bool
	Weak      bool
	// SleepingSince is zero while the peer is awake.
	SleepingSince time.Time
	WakeAt        time.Time
	// AwakeSince is the time the peer was added or last woke up.
	AwakeSince time.Time
	LastFreed  time.Time

	seq uint64
}

// IsAsleep reports whether the peer is excluded from selection.
func (pi PeerInfo) IsAsleep() bool {
	return !pi.SleepingSince.IsZero()
}

// peerEntry is the pool's mutable record of a peer. All fields besides conn and seq are
// guarded by Pool.lock.
type peerEntry struct {
	conn SyncPeer
	seq  uint64

	td   *big.Int
	head uint64

	allocation *Allocation
	sleep      sleepState
	weak       bool
	awakeSince time.Time
	lastFreed  time.Time
}

func newPeerEntry(conn SyncPeer, seq uint64, now time.Time) *peerEntry {
	st := conn.Status()
	td := new(big.Int)
	if st.TotalDifficulty != nil {
		td.Set(st.TotalDifficulty)
	}
	return &peerEntry{
		conn:       conn,
		seq:        seq,
		td:         td,
		head:       st.HeadNumber,
		awakeSince: now,
	}
}

func (e *peerEntry) id() peer.ID {
	return e.conn.ID()
}

func (e *peerEntry) info() PeerInfo {
	return PeerInfo{
		ID:              e.conn.ID(),
		ClientID:        e.conn.ClientID(),
		TotalDifficulty: new(big.Int).Set(e.td),
		HeadNumber:      e.head,
		Allocated:       e.allocation != nil,
		Weak:            e.weak,
		SleepingSince:   e.sleep.since,
		WakeAt:          e.sleep.until,
		AwakeSince:      e.awakeSince,
		LastFreed:       e.lastFreed,
		seq:             e.seq,
	}
}

// eligible reports whether the peer may be handed out for a request with the given minimum
// height.
func (e *peerEntry) eligible(minHeight uint64) bool {
	return e.allocation == nil && !e.sleep.asleep() && e.head >= minHeight
}
