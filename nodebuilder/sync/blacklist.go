package sync

import (
	"context"
	"fmt"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/conngater"

	"github.com/emberchain/ember-node/libs/pidstore"
)

// gatedBlacklist persists evicted peers and blocks them at the connection level, so they can
// neither dial in nor be dialed.
type gatedBlacklist struct {
	store *pidstore.PeerIDStore
	gater *conngater.BasicConnectionGater
}

func newBlacklist(
	ctx context.Context,
	ds datastore.Batching,
	gater *conngater.BasicConnectionGater,
) (*gatedBlacklist, error) {
	store, err := pidstore.NewPeerIDStore(ctx, ds)
	if err != nil {
		return nil, err
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err = gater.BlockPeer(e.ID); err != nil {
			return nil, fmt.Errorf("sync: blocking blacklisted peer %s: %w", e.ID, err)
		}
	}
	return &gatedBlacklist{store: store, gater: gater}, nil
}

func (b *gatedBlacklist) Has(ctx context.Context, id peer.ID) (bool, error) {
	return b.store.Has(ctx, id)
}

func (b *gatedBlacklist) Put(ctx context.Context, id peer.ID, reason string) error {
	if err := b.store.Put(ctx, id, reason); err != nil {
		return err
	}
	return b.gater.BlockPeer(id)
}
