package nodebuilder

import (
	"context"

	"go.uber.org/fx"

	"github.com/emberchain/ember-node/nodebuilder/p2p"
	"github.com/emberchain/ember-node/nodebuilder/sync"
)

// ConstructModule collects all the modules of the node.
func ConstructModule(cfg *Config, store Store) fx.Option {
	baseComponents := fx.Options(
		fx.Provide(func(lc fx.Lifecycle) context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.StopHook(cancel))
			return ctx
		}),
		fx.Supply(cfg),
		fx.Provide(store.Datastore),
		fx.Supply(p2p.UserAgent(cfg.Node.ResolvedClientID())),
		fx.Error(cfg.Node.Validate()),
		// modules provided by the node
		p2p.ConstructModule(&cfg.P2P),
		sync.ConstructModule(&cfg.Sync),
	)

	return fx.Module(
		"node",
		baseComponents,
	)
}
