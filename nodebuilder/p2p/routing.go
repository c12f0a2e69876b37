package p2p

import (
	"context"

	"github.com/ipfs/go-datastore"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/discovery"
	hst "github.com/libp2p/go-libp2p/core/host"
	routingdisc "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"go.uber.org/fx"
)

const dhtProtocolPrefix = "/ember"

// newDHT constructs the DHT used for sync peer discovery.
func newDHT(
	ctx context.Context,
	lc fx.Lifecycle,
	bootstrappers Bootstrappers,
	host hst.Host,
	dataStore datastore.Batching,
) (*dht.IpfsDHT, error) {
	d, err := dht.New(ctx, host,
		dht.BootstrapPeers(bootstrappers...),
		dht.ProtocolPrefix(dhtProtocolPrefix),
		dht.Datastore(dataStore),
		dht.Mode(dht.ModeAuto),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: d.Bootstrap,
		OnStop: func(context.Context) error {
			return d.Close()
		},
	})
	return d, nil
}

// routingDiscovery exposes the DHT as a rendezvous for peer discovery.
func routingDiscovery(d *dht.IpfsDHT) discovery.Discovery {
	return routingdisc.NewRoutingDiscovery(d)
}
