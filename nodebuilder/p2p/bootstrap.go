package p2p

import (
	"context"
	"time"

	hst "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	madns "github.com/multiformats/go-multiaddr-dns"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

// bootstrapTimeout bounds dialing of all bootstrap peers.
var bootstrapTimeout = 30 * time.Second

// Bootstrappers is the list of peers dialed on start.
type Bootstrappers []peer.AddrInfo

func bootstrappers(cfg Config) (Bootstrappers, error) {
	return cfg.bootstrappers()
}

// Bootstrap dials the bootstrap peers once the host is up. Failing dials are logged and do not
// prevent the node from starting.
func Bootstrap(lc fx.Lifecycle, h hst.Host, peers Bootstrappers) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		// bootstrappers are dialed in the background
		go connectAll(context.Background(), h, peers)
		return nil
	}})
}

func connectAll(ctx context.Context, h hst.Host, peers Bootstrappers) int {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	var errg errgroup.Group
	connected := make([]bool, len(peers))
	for i, info := range peers {
		if info.ID == h.ID() {
			continue
		}
		errg.Go(func() error {
			info := resolve(ctx, info)
			h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
			if err := h.Connect(ctx, info); err != nil {
				log.Warnw("failed to connect to bootstrapper", "peer", info.ID, "err", err)
				return nil
			}
			connected[i] = true
			return nil
		})
	}
	_ = errg.Wait()

	var count int
	for _, ok := range connected {
		if ok {
			count++
		}
	}
	log.Infow("connected to bootstrappers", "amount", count, "total", len(peers))
	return count
}

// resolve replaces DNS addresses of the peer with the addresses they resolve to.
func resolve(ctx context.Context, info peer.AddrInfo) peer.AddrInfo {
	addrs := make([]ma.Multiaddr, 0, len(info.Addrs))
	for _, addr := range info.Addrs {
		if !madns.Matches(addr) {
			addrs = append(addrs, addr)
			continue
		}

		resolved, err := madns.DefaultResolver.Resolve(ctx, addr)
		if err != nil {
			log.Warnw("failed to resolve bootstrapper address", "addr", addr, "err", err)
			continue
		}
		addrs = append(addrs, resolved...)
	}
	info.Addrs = addrs
	return info
}
