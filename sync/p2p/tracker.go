package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/emberchain/ember-node/sync/peers"
)

// PeerSet receives the peers the tracker handshakes with.
type PeerSet interface {
	AddPeer(peers.SyncPeer) error
	RemovePeer(peers.SyncPeer)
}

// Tracker watches the host's connections and hands the peers speaking the status protocol to
// the pool. Peers the pool rejects for capacity or blacklisting are disconnected.
type Tracker struct {
	host   host.Host
	set    PeerSet
	params Parameters

	lock    sync.Mutex
	conns   map[peer.ID]*Conn
	pending map[peer.ID]struct{}

	notifee *network.NotifyBundle
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewTracker(params Parameters, h host.Host, set PeerSet) (*Tracker, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("sync/p2p: tracker creation failed: %w", err)
	}

	t := &Tracker{
		host:    h,
		set:     set,
		params:  params,
		conns:   make(map[peer.ID]*Conn),
		pending: make(map[peer.ID]struct{}),
	}
	t.notifee = &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			t.connected(c.RemotePeer())
		},
		DisconnectedF: func(n network.Network, c network.Conn) {
			// a peer may hold several connections, it is gone only when the last one closes
			if n.Connectedness(c.RemotePeer()) != network.Connected {
				t.disconnected(c.RemotePeer())
			}
		},
	}
	return t, nil
}

// Start subscribes to connection events and handshakes with the peers that are already
// connected.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.host.Network().Notify(t.notifee)

	errg, ctx := errgroup.WithContext(ctx)
	errg.SetLimit(t.params.AdoptConcurrency)
	for _, id := range t.host.Network().Peers() {
		if !t.reserve(id) {
			continue
		}
		errg.Go(func() error {
			t.handshake(ctx, id)
			return nil
		})
	}
	return errg.Wait()
}

// Stop unsubscribes from connection events and waits for in-flight handshakes until ctx is done.
// Handshakes finishing after Stop do not reach the peer set.
func (t *Tracker) Stop(ctx context.Context) error {
	t.host.Network().StopNotify(t.notifee)
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	for id, c := range t.conns {
		t.set.RemovePeer(c)
		delete(t.conns, id)
	}
	return err
}

// Connect dials the peer at addr. The handshake follows through the connection notification.
func (t *Tracker) Connect(ctx context.Context, addr ma.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("sync/p2p: parsing peer address: %w", err)
	}
	return t.host.Connect(ctx, *info)
}

func (t *Tracker) connected(id peer.ID) {
	if id == t.host.ID() || !t.reserve(id) {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.handshake(t.ctx, id)
	}()
}

func (t *Tracker) disconnected(id peer.ID) {
	t.lock.Lock()
	c, ok := t.conns[id]
	delete(t.conns, id)
	t.lock.Unlock()

	if ok {
		t.set.RemovePeer(c)
	}
}

// reserve marks the peer as being handshaked and reports whether it was neither pending nor
// tracked yet.
func (t *Tracker) reserve(id peer.ID) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.conns[id]; ok {
		return false
	}
	if _, ok := t.pending[id]; ok {
		return false
	}
	t.pending[id] = struct{}{}
	return true
}

func (t *Tracker) handshake(ctx context.Context, id peer.ID) {
	defer func() {
		t.lock.Lock()
		delete(t.pending, id)
		t.lock.Unlock()
	}()

	c, err := Handshake(ctx, t.params, t.host, id)
	if err != nil {
		// not every peer speaks the status protocol
		log.Debugw("handshake failed", "peer", id, "err", err)
		return
	}
	if t.ctx.Err() != nil {
		return
	}

	err = t.set.AddPeer(c)
	switch {
	case err == nil:
	case errors.Is(err, peers.ErrPeerExists):
		return
	case errors.Is(err, peers.ErrCapacityExceeded), errors.Is(err, peers.ErrPeerBlacklisted):
		log.Debugw("pool rejected peer", "peer", id, "err", err)
		if err := c.Disconnect(err.Error()); err != nil {
			log.Debugw("disconnecting rejected peer", "peer", id, "err", err)
		}
		return
	default:
		log.Warnw("adding peer to pool", "peer", id, "err", err)
		return
	}

	t.lock.Lock()
	t.conns[id] = c
	t.lock.Unlock()

	// the peer may have left while the handshake was in flight
	if t.host.Network().Connectedness(id) != network.Connected {
		t.disconnected(id)
	}
}

// Tracked returns the number of peers handed to the pool.
func (t *Tracker) Tracked() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.conns)
}
