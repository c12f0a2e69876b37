package peers

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

type testPeer struct {
	id     peer.ID
	status Status

	lk           sync.Mutex
	chainStatus  Status
	chainErr     error
	requested    []common.Hash
	disconnected string
}

func newTestPeer(id string, td int64, head uint64) *testPeer {
	st := Status{TotalDifficulty: big.NewInt(td), HeadNumber: head}
	return &testPeer{id: peer.ID(id), status: st, chainStatus: st}
}

func (tp *testPeer) ID() peer.ID { return tp.id }
func (tp *testPeer) ClientID() string { return "ember/test" }
func (tp *testPeer) Status() Status { return tp.status }

func (tp *testPeer) ChainStatus(_ context.Context, head common.Hash) (Status, error) {
	tp.lk.Lock()
	defer tp.lk.Unlock()
	tp.requested = append(tp.requested, head)
	return tp.chainStatus, tp.chainErr
}

func (tp *testPeer) Disconnect(reason string) error {
	tp.lk.Lock()
	defer tp.lk.Unlock()
	tp.disconnected = reason
	return nil
}

func (tp *testPeer) setChainStatus(td int64, head uint64, err error) {
	tp.lk.Lock()
	defer tp.lk.Unlock()
	tp.chainStatus = Status{TotalDifficulty: big.NewInt(td), HeadNumber: head}
	tp.chainErr = err
}

func (tp *testPeer) requests() int {
	tp.lk.Lock()
	defer tp.lk.Unlock()
	return len(tp.requested)
}

func (tp *testPeer) disconnectReason() string {
	tp.lk.Lock()
	defer tp.lk.Unlock()
	return tp.disconnected
}

type memBlacklist struct {
	lk    sync.Mutex
	peers map[peer.ID]string
	err   error
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{peers: make(map[peer.ID]string)}
}

func (bl *memBlacklist) Has(_ context.Context, id peer.ID) (bool, error) {
	bl.lk.Lock()
	defer bl.lk.Unlock()
	_, ok := bl.peers[id]
	return ok, bl.err
}

func (bl *memBlacklist) Put(_ context.Context, id peer.ID, reason string) error {
	bl.lk.Lock()
	defer bl.lk.Unlock()
	bl.peers[id] = reason
	return bl.err
}

type staticHead struct {
	status Status
}

func (h staticHead) Head() Status {
	return h.status
}

var errTestNetwork = errors.New("test: network failure")

func testParams() Parameters {
	params := DefaultParameters()
	params.PeerMaxCount = 8
	params.OffenceCacheSize = 16
	return params
}

func newTestPool(t *testing.T, params Parameters, opts ...Option) *Pool {
	t.Helper()
	p, err := NewPool(params, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, p.Stop(ctx))
	})
	return p
}

func addPeers(t *testing.T, p *Pool, peers ...*testPeer) {
	t.Helper()
	for _, tp := range peers {
		require.NoError(t, p.AddPeer(tp))
	}
}

func ids(infos []PeerInfo) []peer.ID {
	out := make([]peer.ID, len(infos))
	for i, info := range infos {
		out[i] = info.ID
	}
	return out
}

// stuckPeer records the status request and then hangs until released, ignoring ctx like a
// stream read that is already blocked.
type stuckPeer struct {
	*testPeer
	release chan struct{}
}

func newStuckPeer(id string, td int64, head uint64) *stuckPeer {
	return &stuckPeer{testPeer: newTestPeer(id, td, head), release: make(chan struct{})}
}

func (sp *stuckPeer) ChainStatus(ctx context.Context, head common.Hash) (Status, error) {
	st, err := sp.testPeer.ChainStatus(ctx, head)
	<-sp.release
	return st, err
}
