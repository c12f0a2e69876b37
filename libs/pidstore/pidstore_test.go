package pidstore

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberchain/ember-node/sync/peers"
)

var _ peers.Blacklist = (*PeerIDStore)(nil)

func TestPutLoad(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	mn, err := mocknet.FullMeshConnected(3)
	require.NoError(t, err)
	ids := make([]peer.ID, 0, 3)
	for _, h := range mn.Hosts() {
		ids = append(ids, h.ID())
	}

	ds := sync.MutexWrap(datastore.NewMapDatastore())
	store, err := NewPeerIDStore(ctx, ds)
	require.NoError(t, err)

	for _, id := range ids[:2] {
		require.NoError(t, store.Put(ctx, id, "invalid header"))
	}

	has, err := store.Has(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, has)
	has, err = store.Has(ctx, ids[2])
	require.NoError(t, err)
	assert.False(t, has)

	entry, err := store.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], entry.ID)
	assert.Equal(t, "invalid header", entry.Reason)
	assert.False(t, entry.Since.IsZero())

	// entries survive reopening
	store, err = NewPeerIDStore(ctx, ds)
	require.NoError(t, err)
	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, store.Delete(ctx, ids[0]))
	has, err = store.Has(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCorruptedEntries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	ds := sync.MutexWrap(datastore.NewMapDatastore())
	corrupted := storePrefix.ChildString("garbage")
	require.NoError(t, ds.Put(ctx, corrupted, []byte("{not json")))

	store, err := NewPeerIDStore(ctx, ds)
	require.NoError(t, err)

	entries, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	has, err := ds.Has(ctx, corrupted)
	require.NoError(t, err)
	assert.False(t, has)
}
