package peers

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("highest difficulty is borrowed and re-borrowed", func(t *testing.T) {
		params := testParams()
		params.PeerMaxCount = 2
		p := newTestPool(t, params)
		ctx := context.Background()

		a, b := newTestPeer("A", 100, 10), newTestPeer("B", 50, 10)
		addPeers(t, p, a, b)

		alloc, err := p.Borrow(ctx, BorrowRequest{Description: "headers"})
		require.NoError(t, err)
		require.Equal(t, a.ID(), alloc.PeerID())

		// a free useful peer is handed out even without waiting, so the second borrow only
		// fails once B is excluded, here by a minimum height above its head
		_, err = p.Borrow(ctx, BorrowRequest{Description: "bodies", MinHeight: 11})
		require.ErrorIs(t, err, ErrNoPeerAvailable)

		second, err := p.Borrow(ctx, BorrowRequest{Description: "bodies", Timeout: 0})
		require.NoError(t, err)
		require.Equal(t, b.ID(), second.PeerID())
		require.NoError(t, p.Free(second))

		require.NoError(t, p.Free(alloc))
		alloc, err = p.Borrow(ctx, BorrowRequest{Description: "headers"})
		require.NoError(t, err)
		require.Equal(t, a.ID(), alloc.PeerID())
	})

	t.Run("zero timeout fails immediately when all peers are allocated", func(t *testing.T) {
		params := testParams()
		params.PeerMaxCount = 2
		p := newTestPool(t, params)
		ctx := context.Background()

		addPeers(t, p, newTestPeer("A", 100, 10), newTestPeer("B", 50, 10))
		first, err := p.Borrow(ctx, BorrowRequest{})
		require.NoError(t, err)
		second, err := p.Borrow(ctx, BorrowRequest{})
		require.NoError(t, err)
		require.NotEqual(t, first.PeerID(), second.PeerID())

		start := time.Now()
		_, err = p.Borrow(ctx, BorrowRequest{Timeout: 0})
		require.ErrorIs(t, err, ErrNoPeerAvailable)
		require.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("capacity", func(t *testing.T) {
		params := testParams()
		params.PeerMaxCount = 3
		p := newTestPool(t, params)

		addPeers(t, p, newTestPeer("A", 1, 1), newTestPeer("B", 1, 1), newTestPeer("C", 1, 1))
		require.Equal(t, 3, p.PeerCount())

		err := p.AddPeer(newTestPeer("D", 1, 1))
		require.ErrorIs(t, err, ErrCapacityExceeded)
		require.Equal(t, 3, p.PeerCount())
		require.Equal(t, 3, p.PeerMaxCount())

		_, ok := p.Find("D")
		require.False(t, ok)
	})

	t.Run("duplicate peer", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1))
		require.ErrorIs(t, p.AddPeer(newTestPeer("A", 2, 2)), ErrPeerExists)
		require.Equal(t, 1, p.PeerCount())
	})

	t.Run("snapshots", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1), newTestPeer("B", 2, 2), newTestPeer("C", 3, 3))

		alloc, err := p.Borrow(context.Background(), BorrowRequest{Description: "state"})
		require.NoError(t, err)
		require.Equal(t, peer.ID("C"), alloc.PeerID())

		p.ReportPeerNoSyncProgress("B", false)

		require.Equal(t, []peer.ID{"A", "B", "C"}, ids(p.AllPeers()))
		require.Equal(t, []peer.ID{"A", "C"}, ids(p.UsefulPeers()))
		require.Equal(t, 2, p.UsefulPeerCount())
		require.Equal(t, []*Allocation{alloc}, p.Allocations())

		info, ok := p.Find("C")
		require.True(t, ok)
		require.True(t, info.Allocated)
		require.Equal(t, "ember/test", info.ClientID)

		// snapshots are copies
		info.TotalDifficulty.SetInt64(1000)
		info, _ = p.Find("C")
		require.EqualValues(t, 3, info.TotalDifficulty.Int64())
	})

	t.Run("removal invalidates allocation", func(t *testing.T) {
		p := newTestPool(t, testParams())
		a := newTestPeer("A", 1, 1)
		addPeers(t, p, a)

		alloc, err := p.Borrow(context.Background(), BorrowRequest{})
		require.NoError(t, err)
		require.NoError(t, alloc.Err())

		p.RemovePeer(a)
		// removing twice is a no-op
		p.RemovePeer(a)

		select {
		case <-alloc.Done():
		default:
			t.Fatal("allocation must be invalidated")
		}
		require.ErrorIs(t, alloc.Err(), ErrAllocationInvalidated)
		require.ErrorIs(t, p.Free(alloc), ErrAllocationInvalidated)
		require.Empty(t, p.Allocations())
		require.Zero(t, p.PeerCount())
	})

	t.Run("stale connection does not remove reconnected peer", func(t *testing.T) {
		p := newTestPool(t, testParams())
		old := newTestPeer("A", 1, 1)
		addPeers(t, p, old)
		p.RemovePeer(old)

		reconnected := newTestPeer("A", 2, 2)
		addPeers(t, p, reconnected)
		p.RemovePeer(old)
		require.Equal(t, 1, p.PeerCount())
	})

	t.Run("double free", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1))

		alloc, err := p.Borrow(context.Background(), BorrowRequest{})
		require.NoError(t, err)
		require.NoError(t, p.Free(alloc))
		require.ErrorIs(t, p.Free(alloc), ErrUnknownAllocation)
		require.ErrorIs(t, p.Free(nil), ErrUnknownAllocation)
	})

	t.Run("free unblocks waiting borrow", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		held, err := p.Borrow(ctx, BorrowRequest{})
		require.NoError(t, err)

		const waiting = 4
		results := make(chan error, waiting)
		for i := 0; i < waiting; i++ {
			go func() {
				alloc, err := p.Borrow(ctx, BorrowRequest{Timeout: time.Second})
				if err == nil {
					err = p.Free(alloc)
				}
				results <- err
			}()
		}
		waitForWaiters(t, p, waiting)

		require.NoError(t, p.Free(held))
		for i := 0; i < waiting; i++ {
			select {
			case err := <-results:
				require.NoError(t, err)
			case <-ctx.Done():
				t.Fatal(ctx.Err())
			}
		}
	})

	t.Run("added peer unblocks waiting borrow", func(t *testing.T) {
		p := newTestPool(t, testParams())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan *Allocation, 1)
		go func() {
			alloc, err := p.Borrow(ctx, BorrowRequest{Timeout: 2 * time.Second})
			assert.NoError(t, err)
			done <- alloc
		}()
		waitForWaiters(t, p, 1)

		addPeers(t, p, newTestPeer("A", 1, 1))
		select {
		case alloc := <-done:
			require.Equal(t, peer.ID("A"), alloc.PeerID())
		case <-ctx.Done():
			t.Fatal(ctx.Err())
		}
	})

	t.Run("waiters are served in arrival order", func(t *testing.T) {
		p := newTestPool(t, testParams())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		const waiting = 3
		order := make(chan int, waiting)
		for i := 0; i < waiting; i++ {
			go func(i int) {
				_, err := p.Borrow(ctx, BorrowRequest{Timeout: 2 * time.Second})
				if err == nil {
					order <- i
				}
			}(i)
			waitForWaiters(t, p, i+1)
		}

		for i := 0; i < waiting; i++ {
			addPeers(t, p, newTestPeer(string(rune('A'+i)), 1, 1))
			select {
			case served := <-order:
				require.Equal(t, i, served)
			case <-ctx.Done():
				t.Fatal(ctx.Err())
			}
		}
	})

	t.Run("timeout", func(t *testing.T) {
		p := newTestPool(t, testParams())
		const timeout = 100 * time.Millisecond

		start := time.Now()
		_, err := p.Borrow(context.Background(), BorrowRequest{Timeout: timeout})
		elapsed := time.Since(start)

		require.ErrorIs(t, err, ErrNoPeerAvailable)
		require.GreaterOrEqual(t, elapsed, timeout)
		require.Less(t, elapsed, timeout+250*time.Millisecond)
		require.Zero(t, p.stats().waiters)
	})

	t.Run("cancel", func(t *testing.T) {
		p := newTestPool(t, testParams())
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, err := p.Borrow(ctx, BorrowRequest{Timeout: time.Minute})
			errCh <- err
		}()
		waitForWaiters(t, p, 1)
		cancel()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrCancelled)
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("borrow did not return after cancel")
		}

		// nothing was allocated to the cancelled borrower
		addPeers(t, p, newTestPeer("A", 1, 1))
		require.Empty(t, p.Allocations())
	})

	t.Run("abandoned waiter returns its peer", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1))

		// simulate a waiter that was served right before it timed out
		p.lock.Lock()
		w := &waiter{req: BorrowRequest{Policy: ByTotalDifficulty}, ready: make(chan borrowResult, 1)}
		w.elem = p.waiters.PushBack(w)
		p.dispatchLocked()
		p.lock.Unlock()
		require.Len(t, p.Allocations(), 1)

		err := p.abandon(w, ErrNoPeerAvailable)
		require.ErrorIs(t, err, ErrNoPeerAvailable)
		require.Empty(t, p.Allocations())

		info, _ := p.Find("A")
		require.False(t, info.Allocated)
	})

	t.Run("no double allocation under contention", func(t *testing.T) {
		params := testParams()
		p := newTestPool(t, params)
		for i := 0; i < 4; i++ {
			addPeers(t, p, newTestPeer(string(rune('A'+i)), int64(i), 1))
		}

		var (
			holders    sync.Map
			violations atomic.Int64
			served     atomic.Int64
			wg         sync.WaitGroup
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					alloc, err := p.Borrow(ctx, BorrowRequest{Timeout: time.Second})
					if errors.Is(err, ErrNoPeerAvailable) {
						continue
					}
					if err != nil {
						violations.Add(1)
						return
					}
					if _, loaded := holders.LoadOrStore(alloc.PeerID(), alloc); loaded {
						violations.Add(1)
					}
					served.Add(1)
					holders.Delete(alloc.PeerID())
					if err := p.Free(alloc); err != nil {
						violations.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		require.Zero(t, violations.Load())
		require.Positive(t, served.Load())
		require.Empty(t, p.Allocations())
	})

	t.Run("wake all", func(t *testing.T) {
		p := newTestPool(t, testParams())
		addPeers(t, p, newTestPeer("A", 1, 1), newTestPeer("B", 1, 1))
		p.ReportPeerNoSyncProgress("A", true)
		p.ReportPeerInvalid("B", "bad header")
		require.Zero(t, p.UsefulPeerCount())

		p.WakeAll()
		require.Equal(t, 2, p.UsefulPeerCount())
		for _, info := range p.AllPeers() {
			require.False(t, info.IsAsleep())
		}
	})

	t.Run("peer added subscription", func(t *testing.T) {
		p := newTestPool(t, testParams())
		events, cancel := p.SubscribePeerAdded()

		addPeers(t, p, newTestPeer("A", 7, 1))
		select {
		case ev := <-events:
			require.Equal(t, peer.ID("A"), ev.Peer.ID)
			require.EqualValues(t, 7, ev.Peer.TotalDifficulty.Int64())
		default:
			t.Fatal("event must be delivered synchronously on add")
		}

		cancel()
		_, ok := <-events
		require.False(t, ok)
		// cancelling twice is safe
		cancel()
		addPeers(t, p, newTestPeer("B", 1, 1))
	})

	t.Run("stop", func(t *testing.T) {
		p := newTestPool(t, testParams())
		ctx := context.Background()
		require.NoError(t, p.Start(ctx))
		require.Error(t, p.Start(ctx))

		events, _ := p.SubscribePeerAdded()
		errCh := make(chan error, 1)
		go func() {
			_, err := p.Borrow(ctx, BorrowRequest{Timeout: time.Minute})
			errCh <- err
		}()
		waitForWaiters(t, p, 1)

		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, p.Stop(stopCtx))
		require.NoError(t, p.Stop(stopCtx))

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrPoolStopped)
		case <-time.After(time.Second):
			t.Fatal("borrow did not return after stop")
		}
		_, ok := <-events
		require.False(t, ok)

		require.ErrorIs(t, p.AddPeer(newTestPeer("A", 1, 1)), ErrPoolStopped)
		_, err := p.Borrow(ctx, BorrowRequest{})
		require.ErrorIs(t, err, ErrPoolStopped)
		require.ErrorIs(t, p.Start(ctx), ErrPoolStopped)
	})

	t.Run("stop without start", func(t *testing.T) {
		p, err := NewPool(testParams())
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, p.Stop(ctx))
		require.NoError(t, p.Stop(ctx))
	})

	t.Run("blacklisted peer is rejected", func(t *testing.T) {
		bl := newMemBlacklist()
		bl.peers["A"] = "invalid block"
		p := newTestPool(t, testParams(), WithBlacklist(bl))

		require.ErrorIs(t, p.AddPeer(newTestPeer("A", 1, 1)), ErrPeerBlacklisted)
		require.NoError(t, p.AddPeer(newTestPeer("B", 1, 1)))
	})
}

func TestClampHeight(t *testing.T) {
	assert.EqualValues(t, 0, clampHeight(0))
	assert.EqualValues(t, 1<<40, clampHeight(1<<40))
	assert.EqualValues(t, math.MaxInt64, clampHeight(math.MaxInt64))
	assert.EqualValues(t, math.MaxInt64, clampHeight(math.MaxUint64))
}

func TestParameters_Validate(t *testing.T) {
	params := DefaultParameters()
	require.NoError(t, params.Validate())
	require.Error(t, (&Parameters{}).Validate())

	tests := map[string]func(*Parameters){
		"peer max count":    func(p *Parameters) { p.PeerMaxCount = 0 },
		"severe too short":  func(p *Parameters) { p.SevereBackoff = p.NoProgressBackoff },
		"max too short":     func(p *Parameters) { p.MaxBackoff = p.SevereBackoff - 1 },
		"eviction":          func(p *Parameters) { p.EvictionThreshold = 0 },
		"sweep":             func(p *Parameters) { p.SweepInterval = 0 },
		"workers":           func(p *Parameters) { p.RefreshWorkers = 0 },
		"small offence lru": func(p *Parameters) { p.OffenceCacheSize = p.PeerMaxCount - 1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			params := DefaultParameters()
			mutate(&params)
			require.Error(t, params.Validate())
			_, err := NewPool(params)
			require.Error(t, err)
		})
	}
}

func waitForWaiters(t *testing.T, p *Pool, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.stats().waiters == int64(n)
	}, time.Second, time.Millisecond)
}
