package peers

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/workerpool"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
)

var log = logging.Logger("sync/peers")

// Blacklist persists peers evicted for misbehaviour.
type Blacklist interface {
	Has(ctx context.Context, id peer.ID) (bool, error)
	Put(ctx context.Context, id peer.ID, reason string) error
}

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateStopped
)

// Pool tracks connected sync peers and lends them out exclusively to sync tasks.
type Pool struct {
	params    Parameters
	clock     clock.Clock
	chain     ChainHead
	blacklist Blacklist
	metrics   *metrics

	// lock guards everything below up to refresher, including all peerEntry state.
	lock        sync.Mutex
	state       poolState
	registry    *registry
	allocations map[uint64]*Allocation
	lastAllocID uint64
	waiters     *list.List
	offences    *lru.Cache[peer.ID, *offenceRecord]
	subs        map[uint64]chan PeerAddedEvent
	lastSubID   uint64

	refresher *workerpool.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPool creates a Pool with the given parameters. The pool serves AddPeer and Borrow calls
// right away, Start only launches the background sweep.
func NewPool(params Parameters, opts ...Option) (*Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	offences, err := lru.New[peer.ID, *offenceRecord](params.OffenceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("sync/peers: creating offence cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		params:      params,
		clock:       clock.New(),
		registry:    newRegistry(params.PeerMaxCount),
		allocations: make(map[uint64]*Allocation),
		waiters:     list.New(),
		offences:    offences,
		subs:        make(map[uint64]chan PeerAddedEvent),
		refresher:   workerpool.New(params.RefreshWorkers),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the background routine that wakes sleeping peers and refreshes peer total
// difficulty.
func (p *Pool) Start(context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	switch p.state {
	case stateRunning:
		return errors.New("sync/peers: pool already started")
	case stateStopped:
		return ErrPoolStopped
	}
	p.state = stateRunning
	go p.monitor(p.ctx)
	return nil
}

// Stop terminates the background routine and waits for it and in-flight refreshes to exit, or
// for ctx to be done. Borrowers that are still
// waiting are released with ErrPoolStopped. Stop is idempotent.
func (p *Pool) Stop(ctx context.Context) error {
	p.lock.Lock()
	wasRunning := p.state == stateRunning
	if p.state != stateStopped {
		p.state = stateStopped
		p.cancel()
		p.failWaitersLocked(ErrPoolStopped)
		for id, ch := range p.subs {
			delete(p.subs, id)
			close(ch)
		}
		if !wasRunning {
			close(p.done)
		}
	}
	p.lock.Unlock()

	// in-flight refreshes may be blocked on the network past ctx
	refreshed := make(chan struct{})
	go func() {
		p.refresher.Stop()
		close(refreshed)
	}()

	for _, ch := range []<-chan struct{}{refreshed, p.done} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// AddPeer adds a connected peer to the pool. The peer is immediately eligible for borrowing.
func (p *Pool) AddPeer(conn SyncPeer) error {
	id := conn.ID()
	if p.blacklist != nil {
		ctx, cancel := context.WithTimeout(p.ctx, p.params.RequestTimeout)
		blacklisted, err := p.blacklist.Has(ctx, id)
		cancel()
		if err != nil {
			log.Warnw("checking blacklist", "peer", id, "err", err)
		}
		if blacklisted {
			log.Debugw("rejecting blacklisted peer", "peer", id)
			return ErrPeerBlacklisted
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == stateStopped {
		return ErrPoolStopped
	}

	e, err := p.registry.add(conn, p.clock.Now())
	if err != nil {
		log.Debugw("rejecting peer", "peer", id, "peers", p.registry.len(), "err", err)
		return err
	}
	info := e.info()
	log.Infow("added peer",
		"peer", id,
		"client", info.ClientID,
		"total_difficulty", info.TotalDifficulty,
		"head", info.HeadNumber,
		"peers", p.registry.len(),
	)

	p.dispatchLocked()
	p.notifyPeerAddedLocked(PeerAddedEvent{Peer: info})
	return nil
}

// RemovePeer removes the peer behind the given connection from the pool. An allocation that
// holds the peer is invalidated. Removing a peer that is not in the pool is a no-op.
func (p *Pool) RemovePeer(conn SyncPeer) {
	p.lock.Lock()
	defer p.lock.Unlock()

	e, ok := p.registry.find(conn.ID())
	if !ok || e.conn != conn {
		return
	}
	p.removeLocked(e.id(), "disconnected")
}

func (p *Pool) removeLocked(id peer.ID, reason string) *peerEntry {
	e, ok := p.registry.remove(id)
	if !ok {
		return nil
	}

	if a := e.allocation; a != nil {
		e.allocation = nil
		delete(p.allocations, a.id)
		a.invalidate()
		log.Warnw("invalidated allocation of removed peer",
			"peer", id, "allocation", a.id, "description", a.description)
	}
	log.Infow("removed peer", "peer", id, "reason", reason, "peers", p.registry.len())
	return e
}

// Find returns a snapshot of the peer with the given identity.
func (p *Pool) Find(id peer.ID) (PeerInfo, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	e, ok := p.registry.find(id)
	if !ok {
		return PeerInfo{}, false
	}
	return e.info(), true
}

// WakeAll wakes every sleeping peer, e.g. after a fork was resolved and all peers deserve
// another try.
func (p *Pool) WakeAll() {
	p.lock.Lock()
	defer p.lock.Unlock()

	now := p.clock.Now()
	var woken int
	for _, e := range p.registry.all() {
		if e.sleep.asleep() {
			e.sleep.wake()
			e.awakeSince = now
			woken++
		}
	}
	log.Infow("woke up all peers", "amount", woken)
	p.dispatchLocked()
}

// AllPeers returns snapshots of all peers in insertion order.
func (p *Pool) AllPeers() []PeerInfo {
	p.lock.Lock()
	defer p.lock.Unlock()
	return infos(p.registry.all())
}

// UsefulPeers returns snapshots of all awake peers in insertion order.
func (p *Pool) UsefulPeers() []PeerInfo {
	p.lock.Lock()
	defer p.lock.Unlock()
	return infos(p.registry.useful())
}

// Allocations returns all live allocations ordered by creation.
func (p *Pool) Allocations() []*Allocation {
	p.lock.Lock()
	defer p.lock.Unlock()

	allocs := make([]*Allocation, 0, len(p.allocations))
	for _, a := range p.allocations {
		allocs = append(allocs, a)
	}
	sort.Slice(allocs, func(i, j int) bool {
		return allocs[i].id < allocs[j].id
	})
	return allocs
}

// PeerCount returns the number of peers in the pool.
func (p *Pool) PeerCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.registry.len()
}

// UsefulPeerCount returns the number of peers that are awake and not weak.
func (p *Pool) UsefulPeerCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.registry.useful())
}

// PeerMaxCount returns the capacity of the pool.
func (p *Pool) PeerMaxCount() int {
	return p.params.PeerMaxCount
}

func infos(entries []*peerEntry) []PeerInfo {
	out := make([]PeerInfo, len(entries))
	for i, e := range entries {
		out[i] = e.info()
	}
	return out
}
