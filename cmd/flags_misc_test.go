package cmd

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func miscCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(MiscFlags())
	require.NoError(t, cmd.ParseFlags(args))
	cmd.SetContext(context.Background())
	return cmd
}

func TestParseMiscFlags(t *testing.T) {
	t.Run("metrics adds a node option", func(t *testing.T) {
		cmd := miscCommand(t, "--metrics", "--metrics.endpoint", "otel:4318", "--metrics.tls=false")
		ctx, err := ParseMiscFlags(context.Background(), cmd)
		require.NoError(t, err)
		assert.Len(t, NodeOptions(ctx), 1)

		endpoint, insecure, on := otlpTarget(cmd, metricsFlag)
		assert.True(t, on)
		assert.True(t, insecure)
		assert.Equal(t, "otel:4318", endpoint)
	})

	t.Run("telemetry is off by default", func(t *testing.T) {
		cmd := miscCommand(t)
		ctx, err := ParseMiscFlags(context.Background(), cmd)
		require.NoError(t, err)
		assert.Empty(t, NodeOptions(ctx))

		_, _, on := otlpTarget(cmd, tracingFlag)
		assert.False(t, on)
	})

	t.Run("module levels", func(t *testing.T) {
		cmd := miscCommand(t, "--log.level.module", "sync/peers:debug")
		_, err := ParseMiscFlags(context.Background(), cmd)
		require.NoError(t, err)

		cmd = miscCommand(t, "--log.level.module", "sync/peers")
		_, err = ParseMiscFlags(context.Background(), cmd)
		require.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		cmd := miscCommand(t, "--log.level", "loud")
		_, err := ParseMiscFlags(context.Background(), cmd)
		require.Error(t, err)
	})
}
