package sync

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/emberchain/ember-node/sync/discovery"
	"github.com/emberchain/ember-node/sync/p2p"
	"github.com/emberchain/ember-node/sync/peers"
)

var log = logging.Logger("module/sync")

// ConstructModule collects the sync peer pool and the status protocol around it.
func ConstructModule(cfg *Config) fx.Option {
	// sanitize config values before constructing module
	cfgErr := cfg.Validate()

	return fx.Module(
		"sync",
		fx.Supply(*cfg),
		fx.Error(cfgErr),
		fx.Provide(newHead),
		fx.Provide(blacklist),
		fx.Provide(fx.Annotate(
			newPool,
			fx.OnStart(func(ctx context.Context, pool *peers.Pool) error {
				return pool.Start(ctx)
			}),
			fx.OnStop(func(ctx context.Context, pool *peers.Pool) error {
				return pool.Stop(ctx)
			}),
		)),
		fx.Provide(fx.Annotate(
			newServer,
			fx.OnStart(func(ctx context.Context, server *p2p.Server) error {
				return server.Start(ctx)
			}),
			fx.OnStop(func(ctx context.Context, server *p2p.Server) error {
				return server.Stop(ctx)
			}),
		)),
		fx.Provide(fx.Annotate(
			newTracker,
			fx.OnStart(func(ctx context.Context, tracker *p2p.Tracker) error {
				log.Infow("starting peer tracker", "protocol", cfg.Protocol.ProtocolID())
				return tracker.Start(ctx)
			}),
			fx.OnStop(func(ctx context.Context, tracker *p2p.Tracker) error {
				return tracker.Stop(ctx)
			}),
		)),
		fx.Provide(fx.Annotate(
			newDiscovery,
			fx.OnStart(func(ctx context.Context, disc *discovery.Discovery) error {
				return disc.Start(ctx)
			}),
			fx.OnStop(func(ctx context.Context, disc *discovery.Discovery) error {
				return disc.Stop(ctx)
			}),
		)),
	)
}
