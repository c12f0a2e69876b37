package peers

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

type Parameters struct {
	// PeerMaxCount is the maximum number of peers the pool holds.
	PeerMaxCount int

	// NoProgressBackoff is how long a peer sleeps after a non-severe no-progress report.
	NoProgressBackoff time.Duration

	// SevereBackoff is how long a peer sleeps after its first severe no-progress report within
	// OffenceCooldown. Every further severe report doubles it.
	SevereBackoff time.Duration

	// MaxBackoff caps the backoff and is applied to peers reported invalid.
	MaxBackoff time.Duration

	// OffenceCooldown is the window after which a peer's offence history is forgotten.
	OffenceCooldown time.Duration

	// EvictionThreshold is the number of invalid reports within OffenceCooldown after which a
	// peer is evicted and blacklisted.
	EvictionThreshold int

	// SweepInterval is the interval at which sleeping peers are checked for wake up.
	SweepInterval time.Duration

	// RefreshInterval is the interval at which total difficulty of all awake peers is refreshed.
	RefreshInterval time.Duration

	// RefreshWorkers bounds the number of concurrent total difficulty requests.
	RefreshWorkers int

	// RequestTimeout bounds a single total difficulty request.
	RequestTimeout time.Duration

	// OffenceCacheSize is the number of peers whose offence history is remembered, including
	// peers that have disconnected.
	OffenceCacheSize int
}

// Validate validates the values in Parameters
func (p *Parameters) Validate() error {
	if p.PeerMaxCount <= 0 {
		return fmt.Errorf("sync/peers: peer max count must be positive")
	}
	if p.NoProgressBackoff <= 0 {
		return fmt.Errorf("sync/peers: no progress backoff must be positive")
	}
	if p.SevereBackoff <= p.NoProgressBackoff {
		return fmt.Errorf("sync/peers: severe backoff must be longer than no progress backoff")
	}
	if p.MaxBackoff < p.SevereBackoff {
		return fmt.Errorf("sync/peers: max backoff must not be shorter than severe backoff")
	}
	if p.OffenceCooldown <= 0 {
		return fmt.Errorf("sync/peers: offence cooldown must be positive")
	}
	if p.EvictionThreshold <= 0 {
		return fmt.Errorf("sync/peers: eviction threshold must be positive")
	}
	if p.SweepInterval <= 0 {
		return fmt.Errorf("sync/peers: sweep interval must be positive")
	}
	if p.RefreshInterval <= 0 {
		return fmt.Errorf("sync/peers: refresh interval must be positive")
	}
	if p.RefreshWorkers <= 0 {
		return fmt.Errorf("sync/peers: refresh workers must be positive")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("sync/peers: request timeout must be positive")
	}
	if p.OffenceCacheSize < p.PeerMaxCount {
		return fmt.Errorf("sync/peers: offence cache size must not be less than peer max count")
	}
	return nil
}

// DefaultParameters returns the default configuration values for the sync peer pool.
func DefaultParameters() Parameters {
	return Parameters{
		PeerMaxCount:      25,
		NoProgressBackoff: 30 * time.Second,
		SevereBackoff:     2 * time.Minute,
		MaxBackoff:        15 * time.Minute,
		OffenceCooldown:   30 * time.Minute,
		EvictionThreshold: 3,
		SweepInterval:     time.Second,
		RefreshInterval:   30 * time.Second,
		RefreshWorkers:    4,
		RequestTimeout:    10 * time.Second,
		OffenceCacheSize:  256,
	}
}

// Option configures optional Pool dependencies.
type Option func(*Pool)

// WithClock overrides the clock used for backoffs, timeouts and the background sweep.
func WithClock(c clock.Clock) Option {
	return func(p *Pool) {
		p.clock = c
	}
}

// WithChainHead sets the local chain oracle used for periodic difficulty refresh and weak peer
// recovery.
func WithChainHead(head ChainHead) Option {
	return func(p *Pool) {
		p.chain = head
	}
}

// WithBlacklist sets the store of evicted peers.
func WithBlacklist(bl Blacklist) Option {
	return func(p *Pool) {
		p.blacklist = bl
	}
}

// WithMetrics turns on metric collection in the pool.
func (p *Pool) WithMetrics() error {
	metrics, err := initMetrics(p)
	if err != nil {
		return fmt.Errorf("sync/peers: init metrics: %w", err)
	}
	p.metrics = metrics
	return nil
}
