// Package discovery finds sync peers through a content routing rendezvous and dials them until
// the sync peer pool is full. Dialed peers join the pool through the connection tracker.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/discovery"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/backoff"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("sync/discovery")

// retryTimeout defines time interval between advertise attempts after a failure.
var retryTimeout = time.Second

const tagPrefix = "ember/sync"

// Tag returns the rendezvous point of sync peers of the given network.
func Tag(networkID string) string {
	if networkID == "" {
		return tagPrefix
	}
	return fmt.Sprintf("%s/%s", tagPrefix, networkID)
}

// PeerDemand reports how full the sync peer pool is.
type PeerDemand interface {
	PeerCount() int
	PeerMaxCount() int
}

// Discovery advertises the node under its network's tag and dials peers found under the same
// tag while the pool has room.
type Discovery struct {
	tag       string
	host      host.Host
	disc      discovery.Discovery
	demand    PeerDemand
	connector *backoffConnector
	params    Parameters

	triggerDisc chan struct{}
	metrics     *metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDiscovery constructs a new discovery.
func NewDiscovery(
	params Parameters,
	h host.Host,
	d discovery.Discovery,
	tag string,
	demand PeerDemand,
) (*Discovery, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, fmt.Errorf("discovery: tag cannot be empty")
	}

	return &Discovery{
		tag:         tag,
		host:        h,
		disc:        d,
		demand:      demand,
		connector:   newBackoffConnector(h, backoff.NewFixedBackoff(params.DialBackoff)),
		params:      params,
		triggerDisc: make(chan struct{}, 1),
	}, nil
}

func (d *Discovery) Start(context.Context) error {
	if d.params.Disabled {
		log.Info("sync peer discovery is disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.advertise(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.discoveryLoop(ctx)
	}()
	return nil
}

func (d *Discovery) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a discovery round without waiting for the next interval.
func (d *Discovery) Trigger() {
	select {
	case d.triggerDisc <- struct{}{}:
	default:
	}
}

// advertise persistently advertises the node under the tag.
func (d *Discovery) advertise(ctx context.Context) {
	timer := time.NewTimer(d.params.AdvertiseInterval)
	defer timer.Stop()
	for {
		_, err := d.disc.Advertise(ctx, d.tag)
		d.metrics.observeAdvertise(ctx, err)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnw("error advertising", "rendezvous", d.tag, "err", err)

			// internal discovery mechanism may need some time before attempts
			select {
			case <-time.After(retryTimeout):
				continue
			case <-ctx.Done():
				return
			}
		}

		log.Debugw("advertised", "rendezvous", d.tag)
		timer.Reset(d.params.AdvertiseInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Discovery) discoveryLoop(ctx context.Context) {
	t := time.NewTicker(d.params.DiscoveryInterval)
	defer t.Stop()

	d.discover(ctx)
	for {
		select {
		case <-t.C:
		case <-d.triggerDisc:
		case <-ctx.Done():
			return
		}
		d.discover(ctx)
	}
}

// want returns the number of peers the pool has room for.
func (d *Discovery) want() int {
	return d.demand.PeerMaxCount() - d.demand.PeerCount()
}

// discover finds and dials new peers and reports whether the pool is full.
func (d *Discovery) discover(ctx context.Context) bool {
	want := d.want()
	if want <= 0 {
		log.Debugw("pool is full, skipping discovery")
		return true
	}
	log.Debugw("discovering peers", "want", want)

	findCtx, findCancel := context.WithTimeout(ctx, d.params.FindPeersTimeout)
	defer findCancel()

	peers, err := d.disc.FindPeers(findCtx, d.tag, discovery.Limit(want))
	if err != nil {
		log.Errorw("unable to start discovery", "err", err)
		return false
	}

	var (
		wg    errgroup.Group
		dials int
	)
	wg.SetLimit(want)
	for info := range peers {
		if dials >= want {
			break
		}
		if !d.dialable(info) {
			continue
		}
		dials++
		wg.Go(func() error {
			// we don't pass findCtx so that we don't cancel in progress connections
			d.handleDiscoveredPeer(ctx, info)
			return nil
		})
	}
	_ = wg.Wait()

	full := d.want() <= 0
	d.metrics.observeFindPeers(ctx, dials)
	log.Debugw("discovery finished", "dialed", dials, "pool_full", full)
	return full
}

func (d *Discovery) dialable(info peer.AddrInfo) bool {
	if info.ID == d.host.ID() {
		return false
	}
	return d.host.Network().Connectedness(info.ID) != network.Connected
}

func (d *Discovery) handleDiscoveredPeer(ctx context.Context, info peer.AddrInfo) {
	logger := log.With("peer", info.ID.String())
	err := d.connector.Connect(ctx, info)
	switch {
	case errors.Is(err, errBackoffNotEnded):
		logger.Debug("skip dial: backoff")
	case err != nil:
		logger.Debugw("unable to connect", "err", err)
	default:
		logger.Debug("connected to discovered peer")
	}
}
