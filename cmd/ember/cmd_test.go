package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberchain/ember-node/nodebuilder"
)

func TestInit(t *testing.T) {
	store := filepath.Join(t.TempDir(), ".ember")

	output := &bytes.Buffer{}
	rootCmd.SetOut(output)
	rootCmd.SetArgs([]string{
		"init",
		"--node.store", store,
		"--sync.network", "testnet",
		"--sync.peers.max", "10",
	})
	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)
	require.True(t, nodebuilder.IsInit(store))

	cfg, err := nodebuilder.LoadConfig(filepath.Join(store, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "testnet", cfg.Sync.Protocol.NetworkID)
	assert.Equal(t, 10, cfg.Sync.Pool.PeerMaxCount)

	rootCmd.SetArgs([]string{
		"config-update",
		"--node.store", store,
	})
	err = rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)

	cfg, err = nodebuilder.LoadConfig(filepath.Join(store, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Sync.Pool.PeerMaxCount)
}

func TestInit_InvalidFlag(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"init",
		"--node.store", filepath.Join(t.TempDir(), ".ember"),
		"--p2p.bootstrap", "not-a-multiaddr",
	})
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
}
