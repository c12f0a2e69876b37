package nodebuilder

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.uber.org/fx"

	"github.com/emberchain/ember-node/libs/utils"
	"github.com/emberchain/ember-node/nodebuilder/node"
	modsync "github.com/emberchain/ember-node/nodebuilder/sync"
)

// WithMetrics enables metrics exporting for the node.
func WithMetrics(metricOpts []otlpmetrichttp.Option) fx.Option {
	return fx.Options(
		fx.Supply(metricOpts),
		fx.Invoke(initializeMetrics),
		fx.Invoke(node.WithMetrics),
		fx.Invoke(modsync.WithMetrics),
	)
}

// initializeMetrics initializes the global meter provider.
func initializeMetrics(
	ctx context.Context,
	lc fx.Lifecycle,
	h host.Host,
	cfg *Config,
	opts []otlpmetrichttp.Option,
) error {
	provider, err := utils.NewMetricProvider(ctx, utils.MetricProviderConfig{
		ServiceNamespace:  cfg.Sync.Protocol.NetworkID,
		ServiceName:       "ember-node",
		ServiceVersion:    node.GetBuildInfo().GetSemanticVersion(),
		ServiceInstanceID: h.ID().String(),
		OTLPOptions:       opts,
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})
	otel.SetMeterProvider(provider)
	return runtime.Start(
		runtime.WithMinimumReadMemStatsInterval(time.Second),
		runtime.WithMeterProvider(provider),
	)
}
