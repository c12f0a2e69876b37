package sync

import (
	"context"
	"math/big"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/discovery"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/net/conngater"

	"github.com/emberchain/ember-node/chain"
	modp2p "github.com/emberchain/ember-node/nodebuilder/p2p"
	syncdisc "github.com/emberchain/ember-node/sync/discovery"
	"github.com/emberchain/ember-node/sync/p2p"
	"github.com/emberchain/ember-node/sync/peers"
)

func newHead(cfg Config) (*chain.Head, error) {
	hash, err := cfg.genesisHash()
	if err != nil {
		return nil, err
	}

	genesis := peers.Status{
		TotalDifficulty: new(big.Int).SetUint64(cfg.GenesisDifficulty),
		HeadHash:        hash,
	}
	return chain.NewHead(genesis, cfg.RecentHeads)
}

func blacklist(
	ctx context.Context,
	ds datastore.Batching,
	gater *conngater.BasicConnectionGater,
) (peers.Blacklist, error) {
	return newBlacklist(ctx, ds, gater)
}

func newPool(cfg Config, head *chain.Head, bl peers.Blacklist) (*peers.Pool, error) {
	return peers.NewPool(
		cfg.Pool,
		peers.WithChainHead(head),
		peers.WithBlacklist(bl),
	)
}

func newServer(cfg Config, h host.Host, head *chain.Head, agent modp2p.UserAgent) (*p2p.Server, error) {
	return p2p.NewServer(cfg.Protocol, h, head, string(agent))
}

func newTracker(cfg Config, h host.Host, pool *peers.Pool) (*p2p.Tracker, error) {
	return p2p.NewTracker(cfg.Protocol, h, pool)
}

func newDiscovery(
	cfg Config,
	h host.Host,
	disc discovery.Discovery,
	pool *peers.Pool,
) (*syncdisc.Discovery, error) {
	return syncdisc.NewDiscovery(cfg.Discovery, h, disc, syncdisc.Tag(cfg.Protocol.NetworkID), pool)
}

// WithMetrics turns on metric collection of the sync peer pool and discovery.
func WithMetrics(pool *peers.Pool, disc *syncdisc.Discovery) error {
	if err := pool.WithMetrics(); err != nil {
		return err
	}
	return disc.WithMetrics()
}
