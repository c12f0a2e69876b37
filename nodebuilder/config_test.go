package nodebuilder

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWriteRead(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	in := DefaultConfig()

	err := in.Encode(buf)
	require.NoError(t, err)

	var out Config
	err = out.Decode(buf)
	require.NoError(t, err)
	assert.EqualValues(t, in, &out)
	require.NoError(t, out.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.StartupTimeout = 0
	cfg.Sync.Pool.PeerMaxCount = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup timeout")
	assert.Contains(t, err.Error(), "peer max count")
}

func TestUpdateConfig(t *testing.T) {
	dir := t.TempDir()

	// a config written by an older version misses newer fields
	old := DefaultConfig()
	old.Sync.Pool.RefreshInterval = 0
	old.Node.ShutdownTimeout = 0
	old.Sync.Pool.PeerMaxCount = 7
	require.NoError(t, Init(*old, dir))

	require.NoError(t, UpdateConfig(dir))

	cfg, err := LoadConfig(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sync.Pool.PeerMaxCount, "set values are kept")
	assert.Equal(t, DefaultConfig().Sync.Pool.RefreshInterval, cfg.Sync.Pool.RefreshInterval)
	assert.Equal(t, time.Minute, cfg.Node.ShutdownTimeout)
}
