package peers

import (
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// registry is the set of pooled peers. It is not safe for concurrent use, Pool serializes
// access to it.
type registry struct {
	peers    map[peer.ID]*peerEntry
	nextSeq  uint64
	maxCount int
}

func newRegistry(maxCount int) *registry {
	return &registry{
		peers:    make(map[peer.ID]*peerEntry),
		maxCount: maxCount,
	}
}

func (r *registry) add(conn SyncPeer, now time.Time) (*peerEntry, error) {
	if _, ok := r.peers[conn.ID()]; ok {
		return nil, ErrPeerExists
	}
	if len(r.peers) >= r.maxCount {
		return nil, ErrCapacityExceeded
	}

	r.nextSeq++
	e := newPeerEntry(conn, r.nextSeq, now)
	r.peers[conn.ID()] = e
	return e, nil
}

// remove deletes the peer. Removing an absent peer is a no-op.
func (r *registry) remove(id peer.ID) (*peerEntry, bool) {
	e, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	return e, ok
}

func (r *registry) find(id peer.ID) (*peerEntry, bool) {
	e, ok := r.peers[id]
	return e, ok
}

func (r *registry) len() int {
	return len(r.peers)
}

// all returns every peer in insertion order.
func (r *registry) all() []*peerEntry {
	entries := make([]*peerEntry, 0, len(r.peers))
	for _, e := range r.peers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// useful returns every awake peer in insertion order.
func (r *registry) useful() []*peerEntry {
	all := r.all()
	useful := all[:0]
	for _, e := range all {
		if !e.sleep.asleep() {
			useful = append(useful, e)
		}
	}
	return useful
}

// candidates returns snapshots of the peers that may be allocated for the given minimum height.
func (r *registry) candidates(minHeight uint64) []PeerInfo {
	var infos []PeerInfo
	for _, e := range r.all() {
		if e.eligible(minHeight) {
			infos = append(infos, e.info())
		}
	}
	return infos
}
