package discovery

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/emberchain/ember-node/libs/utils"
)

var meter = otel.Meter("sync_discovery")

type metrics struct {
	advertise metric.Int64Counter
	dialed    metric.Int64Counter
}

// WithMetrics turns on metric collection in discovery.
func (d *Discovery) WithMetrics() error {
	advertise, err := meter.Int64Counter("sync_discovery_advertise_total",
		metric.WithDescription("advertise sessions, labeled by failure"))
	if err != nil {
		return fmt.Errorf("discovery: init metrics: %w", err)
	}
	dialed, err := meter.Int64Counter("sync_discovery_dialed_total",
		metric.WithDescription("discovered peers dialed"))
	if err != nil {
		return fmt.Errorf("discovery: init metrics: %w", err)
	}

	d.metrics = &metrics{advertise: advertise, dialed: dialed}
	return nil
}

func (m *metrics) observeAdvertise(ctx context.Context, err error) {
	if m == nil {
		return
	}
	ctx = utils.Detach(ctx)
	m.advertise.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", err != nil)))
}

func (m *metrics) observeFindPeers(ctx context.Context, dialed int) {
	if m == nil {
		return
	}
	ctx = utils.Detach(ctx)
	m.dialed.Add(ctx, int64(dialed))
}
