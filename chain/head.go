// Package chain holds the local node's view of its best chain.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"

	"github.com/emberchain/ember-node/sync/peers"
)

var log = logging.Logger("chain")

// DefaultRecentSize is the number of past heads Head remembers by hash.
const DefaultRecentSize = 1024

var (
	// ErrStaleHead is returned by Set for heads with lower total difficulty than the current one.
	ErrStaleHead = errors.New("chain: head has lower total difficulty than current")
	// ErrNoDifficulty is returned by Set for heads without total difficulty.
	ErrNoDifficulty = errors.New("chain: head without total difficulty")
)

// Head tracks the local best head and a window of recently seen heads. It answers the local
// side of the sync peer pool's difficulty comparisons and the status requests of remote peers.
type Head struct {
	lock   sync.RWMutex
	head   peers.Status
	recent *lru.Cache[common.Hash, peers.Status]
}

// NewHead creates a Head starting at genesis.
func NewHead(genesis peers.Status, recentSize int) (*Head, error) {
	if genesis.TotalDifficulty == nil {
		return nil, ErrNoDifficulty
	}
	recent, err := lru.New[common.Hash, peers.Status](recentSize)
	if err != nil {
		return nil, fmt.Errorf("chain: creating recent heads cache: %w", err)
	}

	h := &Head{recent: recent}
	h.head = clone(genesis)
	h.recent.Add(genesis.HeadHash, clone(genesis))
	return h, nil
}

// Head returns the current best head.
func (h *Head) Head() peers.Status {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return clone(h.head)
}

// Set advances the best head. Heads with lower total difficulty than the current one are
// rejected, heads with equal difficulty replace it.
func (h *Head) Set(st peers.Status) error {
	if st.TotalDifficulty == nil {
		return ErrNoDifficulty
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if st.TotalDifficulty.Cmp(h.head.TotalDifficulty) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrStaleHead, st.TotalDifficulty, h.head.TotalDifficulty)
	}

	h.head = clone(st)
	h.recent.Add(st.HeadHash, clone(st))
	log.Debugw("new head", "number", st.HeadNumber, "hash", st.HeadHash, "total_difficulty", st.TotalDifficulty)
	return nil
}

// Status returns the status of the head with the given hash if it is the current head or one
// of the recently replaced ones. The zero hash stands for the current head.
func (h *Head) Status(hash common.Hash) (peers.Status, bool) {
	if hash == (common.Hash{}) {
		return h.Head(), true
	}

	st, ok := h.recent.Get(hash)
	if !ok {
		return peers.Status{}, false
	}
	return clone(st), true
}

func clone(st peers.Status) peers.Status {
	if st.TotalDifficulty != nil {
		st.TotalDifficulty = new(big.Int).Set(st.TotalDifficulty)
	}
	return st
}
