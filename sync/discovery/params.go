package discovery

import (
	"fmt"
	"time"
)

// Parameters is the set of parameters of sync peer discovery.
type Parameters struct {
	// Disabled turns off advertising and discovery.
	Disabled bool
	// AdvertiseInterval is the interval between advertising sessions.
	AdvertiseInterval time.Duration
	// DiscoveryInterval is the interval at which discovery runs while the pool wants peers.
	DiscoveryInterval time.Duration
	// FindPeersTimeout bounds a single discovery round.
	FindPeersTimeout time.Duration
	// DialBackoff is the time a discovered peer is not dialed again after an attempt.
	DialBackoff time.Duration
}

func DefaultParameters() Parameters {
	return Parameters{
		// based on https://github.com/libp2p/go-libp2p-kad-dht/pull/793
		AdvertiseInterval: 22 * time.Hour,
		DiscoveryInterval: 30 * time.Second,
		FindPeersTimeout:  time.Minute,
		DialBackoff:       10 * time.Minute,
	}
}

func (p *Parameters) Validate() error {
	if p.Disabled {
		return nil
	}
	if p.AdvertiseInterval <= 0 {
		return fmt.Errorf("discovery: advertise interval must be positive")
	}
	if p.DiscoveryInterval <= 0 {
		return fmt.Errorf("discovery: discovery interval must be positive")
	}
	if p.FindPeersTimeout <= 0 {
		return fmt.Errorf("discovery: find peers timeout must be positive")
	}
	if p.DialBackoff < 0 {
		return fmt.Errorf("discovery: dial backoff must not be negative")
	}
	return nil
}
