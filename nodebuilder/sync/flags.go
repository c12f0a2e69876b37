package sync

import (
	"fmt"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

var (
	networkFlag      = "sync.network"
	peerMaxCountFlag = "sync.peers.max"
	genesisHashFlag  = "sync.genesis-hash"
)

// Flags gives a set of sync flags.
func Flags() *flag.FlagSet {
	flags := &flag.FlagSet{}

	flags.String(
		networkFlag,
		"",
		"Network the status protocol is scoped to. Nodes of different networks do not pair",
	)
	flags.Int(
		peerMaxCountFlag,
		0,
		"Maximum number of peers the sync peer pool holds",
	)
	flags.String(
		genesisHashFlag,
		"",
		"0x prefixed hex encoded hash of the genesis block",
	)

	return flags
}

// ParseFlags parses sync flags from the given cmd and saves them to the passed config.
func ParseFlags(cmd *cobra.Command, cfg *Config) error {
	if cmd.Flags().Changed(networkFlag) {
		cfg.Protocol.NetworkID = cmd.Flag(networkFlag).Value.String()
	}

	if cmd.Flags().Changed(peerMaxCountFlag) {
		count, err := cmd.Flags().GetInt(peerMaxCountFlag)
		if err != nil {
			return err
		}
		if count <= 0 {
			return fmt.Errorf("cmd: %s must be positive", peerMaxCountFlag)
		}
		cfg.Pool.PeerMaxCount = count
	}

	if cmd.Flags().Changed(genesisHashFlag) {
		cfg.GenesisHash = cmd.Flag(genesisHashFlag).Value.String()
		if _, err := cfg.genesisHash(); err != nil {
			return fmt.Errorf("cmd: while parsing '%s': %w", genesisHashFlag, err)
		}
	}
	return nil
}
