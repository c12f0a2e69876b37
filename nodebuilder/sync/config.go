package sync

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/emberchain/ember-node/chain"
	"github.com/emberchain/ember-node/sync/discovery"
	"github.com/emberchain/ember-node/sync/p2p"
	"github.com/emberchain/ember-node/sync/peers"
)

// Config combines the settings of the sync peer pool and the status protocol.
type Config struct {
	// Pool holds the sync peer pool parameters.
	Pool peers.Parameters
	// Protocol holds the status protocol parameters.
	Protocol p2p.Parameters
	// Discovery holds the parameters of sync peer discovery.
	Discovery discovery.Parameters

	// GenesisHash is the 0x prefixed hex encoded hash of the genesis block.
	GenesisHash string
	// GenesisDifficulty is the total difficulty of the genesis block.
	GenesisDifficulty uint64
	// RecentHeads is the number of recent heads the node answers status requests for.
	RecentHeads int
}

func DefaultConfig() Config {
	return Config{
		Pool:              peers.DefaultParameters(),
		Protocol:          p2p.DefaultParameters(),
		Discovery:         discovery.DefaultParameters(),
		GenesisDifficulty: 1,
		RecentHeads:       chain.DefaultRecentSize,
	}
}

// Validate performs basic validation of the config.
func (cfg *Config) Validate() error {
	if err := cfg.Pool.Validate(); err != nil {
		return err
	}
	if err := cfg.Protocol.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := cfg.Discovery.Validate(); err != nil {
		return err
	}
	if _, err := cfg.genesisHash(); err != nil {
		return err
	}
	if cfg.GenesisDifficulty == 0 {
		return fmt.Errorf("sync: genesis difficulty must be positive")
	}
	if cfg.RecentHeads <= 0 {
		return fmt.Errorf("sync: recent heads must be positive")
	}
	return nil
}

func (cfg *Config) genesisHash() (common.Hash, error) {
	if cfg.GenesisHash == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(cfg.GenesisHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sync: parsing genesis hash: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("sync: genesis hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
