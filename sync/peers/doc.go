// Package peers provides the sync peer pool: the set of connected peers that sync tasks borrow
// for downloading headers, bodies and state.
//
// The pool is responsible for:
//   - Tracking connected peers up to a capacity
//   - Lending each peer to at most one sync task at a time
//   - Putting peers that fail to make progress or serve invalid data to sleep
//   - Waking sleeping peers once their backoff elapses
//   - Evicting and blacklisting peers that keep serving invalid data
//   - Keeping the peers' total difficulty up to date
//
// The pool is not responsible for:
//   - Connecting to or discovering peers
//   - Sending sync requests to peers
//   - Deciding what to sync
//
// # Usage
//
// The pool is created using [NewPool] constructor:
//
//	pool, err := peers.NewPool(peers.DefaultParameters(), peers.WithChainHead(head))
//
// Connections are handed to the pool as they complete their handshake and taken away when they
// drop:
//
//	err = pool.AddPeer(conn)
//	pool.RemovePeer(conn)
//
// After creating the pool, it should be started to kick off the routine that wakes peers up and
// refreshes their total difficulty:
//
//	err = pool.Start(ctx)
//
// A sync task borrows a peer, uses it and gives it back. Negative outcomes are reported before
// freeing:
//
//	alloc, err := pool.Borrow(ctx, peers.BorrowRequest{
//		Description: "bodies 1000-1127",
//		MinHeight:   1127,
//		Timeout:     5 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	defer pool.Free(alloc)
//
//	if err := download(ctx, alloc.Peer()); err != nil {
//		pool.ReportNoSyncProgress(alloc, false)
//	}
//
// The pool can be stopped at any time, waiting borrowers are released with [ErrPoolStopped]:
//
//	err = pool.Stop(ctx)
package peers
