package peers

import (
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Allocation is an exclusive loan of one peer to one borrower. It stays valid until it is
// returned with Pool.Free or its peer is removed from the pool, whichever happens first.
type Allocation struct {
	id          uint64
	conn        SyncPeer
	description string
	minHeight   uint64
	createdAt   time.Time

	invalidOnce sync.Once
	invalidated chan struct{}
}

func newAllocation(id uint64, conn SyncPeer, req BorrowRequest, now time.Time) *Allocation {
	return &Allocation{
		id:          id,
		conn:        conn,
		description: req.Description,
		minHeight:   req.MinHeight,
		createdAt:   now,
		invalidated: make(chan struct{}),
	}
}

// Peer returns the borrowed connection.
func (a *Allocation) Peer() SyncPeer {
	return a.conn
}

// PeerID returns the identity of the borrowed peer.
func (a *Allocation) PeerID() peer.ID {
	return a.conn.ID()
}

// Description is the purpose the allocation was requested for.
func (a *Allocation) Description() string {
	return a.description
}

// MinHeight is the minimum head number the peer was required to have.
func (a *Allocation) MinHeight() uint64 {
	return a.minHeight
}

// CreatedAt is the time the peer was handed out.
func (a *Allocation) CreatedAt() time.Time {
	return a.createdAt
}

// Done is closed once the allocation is invalidated by removal of its peer. It is never closed
// for allocations returned through Free.
func (a *Allocation) Done() <-chan struct{} {
	return a.invalidated
}

// Err returns ErrAllocationInvalidated after the peer was removed from the pool and nil before.
func (a *Allocation) Err() error {
	select {
	case <-a.invalidated:
		return ErrAllocationInvalidated
	default:
		return nil
	}
}

func (a *Allocation) String() string {
	return fmt.Sprintf("allocation#%d[%s] %s", a.id, a.conn.ID().ShortString(), a.description)
}

func (a *Allocation) invalidate() {
	a.invalidOnce.Do(func() {
		close(a.invalidated)
	})
}
