package p2p

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

var (
	p2pBootstrapFlag = "p2p.bootstrap"
)

// Flags gives a set of p2p flags.
func Flags() *flag.FlagSet {
	flags := &flag.FlagSet{}

	flags.StringSlice(
		p2pBootstrapFlag,
		nil,
		`Comma-separated multiaddresses of peers to dial on start.
Addresses must include the peer ID. (Format: multiformats.io/multiaddr)`,
	)

	return flags
}

// ParseFlags parses P2P flags from the given cmd and saves them to the passed config.
func ParseFlags(
	cmd *cobra.Command,
	cfg *Config,
) error {
	bootstrap, err := cmd.Flags().GetStringSlice(p2pBootstrapFlag)
	if err != nil {
		return err
	}

	for _, peer := range bootstrap {
		_, err = multiaddr.NewMultiaddr(peer)
		if err != nil {
			return fmt.Errorf("cmd: while parsing '%s': %w", p2pBootstrapFlag, err)
		}
	}

	if len(bootstrap) != 0 {
		cfg.BootstrapPeers = bootstrap
	}
	return nil
}
