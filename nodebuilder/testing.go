package nodebuilder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

// MockStore provides mock in memory Store for testing purposes.
func MockStore(t *testing.T, cfg *Config) Store {
	t.Helper()
	store := NewMemStore()

	err := store.PutConfig(cfg)
	require.NoError(t, err)
	return store
}

func TestNode(t *testing.T, opts ...fx.Option) *Node {
	return TestNodeWithConfig(t, TestConfig(), opts...)
}

func TestNodeWithConfig(t *testing.T, cfg *Config, opts ...fx.Option) *Node {
	store := MockStore(t, cfg)
	nd, err := New(store, opts...)
	require.NoError(t, err)
	return nd
}

// TestConfig returns a default Config listening on a random local port.
func TestConfig() *Config {
	cfg := DefaultConfig()
	// avoids port conflicts
	cfg.P2P.ListenAddresses = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Sync.Protocol.NetworkID = "test"
	// no rendezvous to advertise to in tests
	cfg.Sync.Discovery.Disabled = true
	return cfg
}
