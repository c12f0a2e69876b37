package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/backoff"
)

// backoffCacheSize bounds the number of peers whose last dial is remembered.
const backoffCacheSize = 4096

var errBackoffNotEnded = errors.New("discovery: backoff period has not ended")

// backoffConnector wraps a libp2p.Host to establish a connection with peers
// with adding a delay for the next connection attempt.
type backoffConnector struct {
	h       host.Host
	backoff backoff.BackoffStrategy

	cacheLk sync.Mutex
	// nextTry holds the earliest time of the next connection attempt per peer.
	nextTry *lru.Cache[peer.ID, time.Time]
}

func newBackoffConnector(h host.Host, factory backoff.BackoffFactory) *backoffConnector {
	cache, err := lru.New[peer.ID, time.Time](backoffCacheSize)
	if err != nil {
		panic(err)
	}
	return &backoffConnector{
		h:       h,
		backoff: factory(),
		nextTry: cache,
	}
}

// Connect tries to establish a connection with the peer unless it was tried recently.
func (b *backoffConnector) Connect(ctx context.Context, p peer.AddrInfo) error {
	b.cacheLk.Lock()
	if next, ok := b.nextTry.Get(p.ID); ok && time.Now().Before(next) {
		b.cacheLk.Unlock()
		return errBackoffNotEnded
	}
	b.nextTry.Add(p.ID, time.Now().Add(b.backoff.Delay()))
	b.cacheLk.Unlock()

	return b.h.Connect(ctx, p)
}
