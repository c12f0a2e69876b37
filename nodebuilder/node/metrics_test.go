package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestWithMetrics(t *testing.T) {
	reader := sdk.NewManualReader()
	provider := sdk.NewMeterProvider(sdk.WithReader(reader))

	// re-assign the global variable `meter` from metrics.go
	meter = provider.Meter("test")
	require.NoError(t, WithMetrics())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	collected := make(map[string]metricdata.Aggregation)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		collected[m.Name] = m.Data
	}
	require.Len(t, collected, 3)

	startTS, ok := collected["node_start_ts"].(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.InDelta(t, time.Now().Unix(), startTS.DataPoints[0].Value, 5)

	runtime, ok := collected["node_runtime_counter_in_seconds"].(metricdata.Sum[float64])
	require.True(t, ok)
	assert.GreaterOrEqual(t, runtime.DataPoints[0].Value, 0.0)

	build, ok := collected["build_info"].(metricdata.Gauge[int64])
	require.True(t, ok)
	version, ok := build.DataPoints[0].Attributes.Value("version")
	require.True(t, ok)
	assert.Equal(t, GetBuildInfo().GetSemanticVersion(), version.AsString())
}
