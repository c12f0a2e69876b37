package cmd

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/emberchain/ember-node/nodebuilder/p2p"
	"github.com/emberchain/ember-node/nodebuilder/sync"
)

var log = logging.Logger("cmd")

// Flags gives all the flag sets node commands accept.
func Flags() []*flag.FlagSet {
	return []*flag.FlagSet{
		NodeFlags(),
		p2p.Flags(),
		sync.Flags(),
		MiscFlags(),
	}
}

// PersistentPreRunEnv loads the stored config, applies the flags on top of it and saves the
// result into the command's context.
func PersistentPreRunEnv(cmd *cobra.Command, _ []string) error {
	var (
		ctx = cmd.Context()
		err error
	)

	// loads existing config into the environment
	ctx, err = ParseNodeFlags(ctx, cmd)
	if err != nil {
		return err
	}

	cfg := NodeConfig(ctx)

	err = p2p.ParseFlags(cmd, &cfg.P2P)
	if err != nil {
		return err
	}

	err = sync.ParseFlags(cmd, &cfg.Sync)
	if err != nil {
		return err
	}

	ctx, err = ParseMiscFlags(ctx, cmd)
	if err != nil {
		return err
	}

	// set config
	ctx = WithNodeConfig(ctx, &cfg)
	cmd.SetContext(ctx)
	return nil
}

// WithFlagSet adds the given flagset to the command.
func WithFlagSet(fset []*flag.FlagSet) func(*cobra.Command) {
	return func(c *cobra.Command) {
		for _, set := range fset {
			c.Flags().AddFlagSet(set)
		}
	}
}
