package p2p

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Config combines all configuration fields for P2P subsystem.
type Config struct {
	// ListenAddresses - Addresses to listen to on local NIC.
	ListenAddresses []string
	// BootstrapPeers are dialed on start to join the network.
	BootstrapPeers []string
	// ConnManager is a configuration tuple for ConnectionManager.
	ConnManager connManagerConfig
}

type connManagerConfig struct {
	// Low and High are watermarks governing the number of connections that'll be maintained.
	Low, High int
	// GracePeriod is the amount of time a newly opened connection is given before it becomes
	// subject to pruning.
	GracePeriod time.Duration
}

// DefaultConfig returns default configuration for P2P subsystem.
func DefaultConfig() Config {
	return Config{
		ListenAddresses: []string{
			"/ip4/0.0.0.0/tcp/2424",
			"/ip6/::/tcp/2424",
			"/ip4/0.0.0.0/udp/2424/quic-v1",
			"/ip6/::/udp/2424/quic-v1",
		},
		BootstrapPeers: []string{},
		ConnManager: connManagerConfig{
			Low:         50,
			High:        100,
			GracePeriod: time.Minute,
		},
	}
}

// Validate performs basic validation of the config.
func (cfg *Config) Validate() error {
	for _, addr := range cfg.ListenAddresses {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("p2p: parsing listen address %s: %w", addr, err)
		}
	}
	if _, err := cfg.bootstrappers(); err != nil {
		return err
	}
	if cfg.ConnManager.Low <= 0 || cfg.ConnManager.High < cfg.ConnManager.Low {
		return fmt.Errorf("p2p: invalid connection manager watermarks %d/%d",
			cfg.ConnManager.Low, cfg.ConnManager.High)
	}
	return nil
}

// bootstrappers converts BootstrapPeers to AddrInfos.
func (cfg *Config) bootstrappers() ([]peer.AddrInfo, error) {
	infos := make([]peer.AddrInfo, 0, len(cfg.BootstrapPeers))
	for _, addr := range cfg.BootstrapPeers {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("p2p: parsing bootstrap peer %s: %w", addr, err)
		}

		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			return nil, fmt.Errorf("p2p: parsing info from bootstrap peer %s: %w", addr, err)
		}
		infos = append(infos, *info)
	}
	return infos, nil
}
