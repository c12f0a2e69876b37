package p2p

import (
	"context"
	"fmt"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	hst "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/net/conngater"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/fx"
)

// UserAgent is the version string the host identifies itself with.
type UserAgent string

// connectionGater constructs a BasicConnectionGater whose blocked peers persist in the datastore.
func connectionGater(ds datastore.Batching) (*conngater.BasicConnectionGater, error) {
	return conngater.NewBasicConnectionGater(ds)
}

type hostParams struct {
	fx.In

	Cfg       Config
	Key       crypto.PrivKey
	ConnGater *conngater.BasicConnectionGater
	UserAgent UserAgent
	Lc        fx.Lifecycle
}

// host returns constructor for Host.
func host(params hostParams) (hst.Host, error) {
	cm, err := connmgr.NewConnManager(
		params.Cfg.ConnManager.Low,
		params.Cfg.ConnManager.High,
		connmgr.WithGracePeriod(params.Cfg.ConnManager.GracePeriod),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: creating connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.NoListenAddrs, // do not listen automatically
		libp2p.Identity(params.Key),
		libp2p.ConnectionManager(cm),
		libp2p.ConnectionGater(params.ConnGater),
		libp2p.UserAgent(string(params.UserAgent)),
		libp2p.DisableRelay(),
	)
	if err != nil {
		return nil, err
	}

	params.Lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return h.Close()
	}})
	return h, nil
}

// Listen returns invoke function that starts listening for inbound connections with libp2p.Host.
func Listen(listen []string) func(h hst.Host) (err error) {
	return func(h hst.Host) (err error) {
		maListen := make([]ma.Multiaddr, len(listen))
		for i, addr := range listen {
			maListen[i], err = ma.NewMultiaddr(addr)
			if err != nil {
				return fmt.Errorf("failure to parse config.P2P.ListenAddresses: %s", err)
			}
		}
		return h.Network().Listen(maListen...)
	}
}
