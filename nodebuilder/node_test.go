package nodebuilder

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberchain/ember-node/sync/peers"
)

func TestLifecycle(t *testing.T) {
	node := TestNode(t)
	require.NotNil(t, node)
	require.NotNil(t, node.Config)
	require.NotNil(t, node.Host)
	require.NotNil(t, node.Pool)
	require.NotNil(t, node.Tracker)
	require.NotNil(t, node.Server)
	require.NotNil(t, node.Discovery)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := node.Start(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, node.Host.Network().ListenAddresses())

	err = node.Stop(ctx)
	require.NoError(t, err)
}

func TestLifecycle_InvalidConfig(t *testing.T) {
	cfg := TestConfig()
	cfg.Sync.Pool.PeerMaxCount = 0

	_, err := New(MockStore(t, cfg))
	require.Error(t, err)
}

func TestNodesPair(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first, second := TestNode(t), TestNode(t)
	require.NoError(t, first.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, first.Stop(ctx))
	})
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, second.Stop(ctx))
	})

	err := second.Host.Connect(ctx, *host.InfoFromHost(first.Host))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, okFirst := first.Pool.Find(second.Host.ID())
		_, okSecond := second.Pool.Find(first.Host.ID())
		return okFirst && okSecond
	}, 10*time.Second, 50*time.Millisecond)

	alloc, err := second.Pool.Borrow(ctx, peers.BorrowRequest{Description: "test", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, first.Host.ID(), alloc.Peer().ID())
	require.NoError(t, second.Pool.Free(alloc))
}

func TestNodesDifferentNetworks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := TestConfig()
	cfg.Sync.Protocol.NetworkID = "other"
	first, second := TestNode(t), TestNodeWithConfig(t, cfg)
	require.NoError(t, first.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, first.Stop(ctx))
	})
	require.NoError(t, second.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, second.Stop(ctx))
	})

	err := second.Host.Connect(ctx, *host.InfoFromHost(first.Host))
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return first.Pool.PeerCount() != 0 || second.Pool.PeerCount() != 0
	}, time.Second, 50*time.Millisecond)
}
