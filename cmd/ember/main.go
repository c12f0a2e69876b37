package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberchain/ember-node/cmd"
)

func init() {
	flags := cmd.Flags()
	rootCmd.AddCommand(
		cmd.Init(flags...),
		cmd.Start(flags...),
		cmd.UpdateConfig(flags...),
		versionCmd,
	)
	rootCmd.SetHelpCommand(&cobra.Command{})
}

func main() {
	err := run()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	return rootCmd.ExecuteContext(context.Background())
}

var rootCmd = &cobra.Command{
	Use:   "ember [subcommand]",
	Short: "Ember node keeps a pool of chain sync peers",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if c == versionCmd {
			return nil
		}
		return cmd.PersistentPreRunEnv(c, args)
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}
