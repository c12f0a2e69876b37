package node

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("node")

// WithMetrics registers node uptime and build metrics. The start time is taken at registration.
func WithMetrics() error {
	nodeStartTS, err := meter.Int64ObservableGauge(
		"node_start_ts",
		metric.WithDescription("timestamp when the node was started"),
	)
	if err != nil {
		return err
	}

	totalNodeRunTime, err := meter.Float64ObservableCounter(
		"node_runtime_counter_in_seconds",
		metric.WithDescription("total time the node has been running"),
	)
	if err != nil {
		return err
	}

	buildInfo, err := meter.Int64ObservableGauge(
		"build_info",
		metric.WithDescription("version of the running binary, always 1"),
	)
	if err != nil {
		return err
	}

	started := time.Now()
	build := GetBuildInfo()
	buildAttrs := metric.WithAttributes(
		attribute.String("version", build.GetSemanticVersion()),
		attribute.String("commit", build.CommitShortSha()),
		attribute.String("system_version", build.SystemVersion),
		attribute.String("golang_version", build.GolangVersion),
	)

	callback := func(_ context.Context, observer metric.Observer) error {
		observer.ObserveInt64(nodeStartTS, started.Unix())
		observer.ObserveFloat64(totalNodeRunTime, time.Since(started).Seconds())
		observer.ObserveInt64(buildInfo, 1, buildAttrs)
		return nil
	}

	_, err = meter.RegisterCallback(callback, nodeStartTS, totalNodeRunTime, buildInfo)
	return err
}
