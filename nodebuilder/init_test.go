package nodebuilder

import (
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsInit(dir))

	require.NoError(t, Init(*DefaultConfig(), dir))
	assert.True(t, IsInit(dir))

	// reinitializing keeps the store usable
	require.NoError(t, Init(*DefaultConfig(), dir))
	assert.True(t, IsInit(dir))
}

func TestInitErrForInvalidPath(t *testing.T) {
	path := "/invalid_path"
	require.Error(t, Init(*DefaultConfig(), path))
}

func TestInitErrForLockedDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(*DefaultConfig(), dir))

	flk := flock.New(lockPath(dir))
	ok, err := flk.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() {
		require.NoError(t, flk.Unlock())
	})

	err = Init(*DefaultConfig(), dir)
	require.ErrorIs(t, err, ErrOpened)
}
