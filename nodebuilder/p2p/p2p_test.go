package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/sync"
	hst "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	ds := sync.MutexWrap(datastore.NewMapDatastore())
	key, err := Key(ctx, ds)
	require.NoError(t, err)

	again, err := Key(ctx, ds)
	require.NoError(t, err)
	assert.True(t, key.Equals(again))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.BootstrapPeers = []string{"/ip4/1.2.3.4/tcp/12345"}
	assert.Error(t, cfg.Validate(), "bootstrap peer without ID")

	cfg = DefaultConfig()
	cfg.BootstrapPeers = []string{"/ip4/1.2.3.4/tcp/12345/p2p/12D3KooWNaJ1y1Yio3fFJEXCZyd1Cat3jmrPdgkYCrHfKD3Ce21p"}
	require.NoError(t, cfg.Validate())
	infos, err := cfg.bootstrappers()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	cfg = DefaultConfig()
	cfg.ListenAddresses = []string{"not a multiaddr"}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ConnManager.High = cfg.ConnManager.Low - 1
	assert.Error(t, cfg.Validate())
}

func TestConnectAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	mn, err := mocknet.FullMeshLinked(3)
	require.NoError(t, err)
	hosts := mn.Hosts()

	peers := Bootstrappers{
		*hst.InfoFromHost(hosts[0]), // self is skipped
		*hst.InfoFromHost(hosts[1]),
		*hst.InfoFromHost(hosts[2]),
	}
	count := connectAll(ctx, hosts[0], peers)
	assert.Equal(t, 2, count)
	assert.Len(t, hosts[0].Network().Peers(), 2)

	unlinked, err := mn.GenPeer()
	require.NoError(t, err)
	count = connectAll(ctx, hosts[0], Bootstrappers{{ID: unlinked.ID()}})
	assert.Zero(t, count)
}

func TestResolve(t *testing.T) {
	info, err := peer.AddrInfoFromString("/ip4/1.2.3.4/tcp/12345/p2p/12D3KooWNaJ1y1Yio3fFJEXCZyd1Cat3jmrPdgkYCrHfKD3Ce21p")
	require.NoError(t, err)

	resolved := resolve(context.Background(), *info)
	assert.Equal(t, info.ID, resolved.ID)
	assert.Equal(t, info.Addrs, resolved.Addrs)
}
