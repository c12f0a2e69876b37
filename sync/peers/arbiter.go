package peers

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberchain/ember-node/libs/utils"
)

var tracer = otel.Tracer("sync/peers")

// BorrowRequest describes the peer a sync task wants to borrow.
type BorrowRequest struct {
	// Policy picks among eligible peers. Nil means ByTotalDifficulty.
	Policy SelectionPolicy
	// Description tells what the peer is borrowed for. It shows up in logs.
	Description string
	// MinHeight excludes peers whose head is below it. Zero disables the filter.
	MinHeight uint64
	// Timeout bounds the time Borrow waits for a peer. Zero fails right away if no peer is
	// eligible.
	Timeout time.Duration
}

type borrowResult struct {
	alloc *Allocation
	err   error
}

// waiter is a Borrow call suspended until an eligible peer shows up.
type waiter struct {
	req   BorrowRequest
	ready chan borrowResult
	// elem is the waiter's position in Pool.waiters, nil once it was served.
	elem *list.Element
}

// Borrow hands out an eligible peer exclusively to the caller. If none is eligible, it waits
// until one becomes eligible, the timeout elapses (ErrNoPeerAvailable) or ctx is canceled
// (ErrCancelled). Waiting borrowers are served in arrival order.
func (p *Pool) Borrow(ctx context.Context, req BorrowRequest) (_ *Allocation, err error) {
	if req.Policy == nil {
		req.Policy = ByTotalDifficulty
	}
	start := p.clock.Now()

	ctx, span := tracer.Start(ctx, "borrow", trace.WithAttributes(
		attribute.String("description", req.Description),
		attribute.Int64("min_height", clampHeight(req.MinHeight)),
	))
	defer func() {
		utils.EndSpan(span, err)
	}()

	p.lock.Lock()
	if p.state == stateStopped {
		p.lock.Unlock()
		return nil, ErrPoolStopped
	}
	if a, ok := p.tryAllocateLocked(req); ok {
		p.lock.Unlock()
		p.metrics.observeBorrow(ctx, borrowSuccess, 0)
		return a, nil
	}
	if req.Timeout <= 0 {
		p.lock.Unlock()
		p.metrics.observeBorrow(ctx, borrowNoPeer, 0)
		return nil, ErrNoPeerAvailable
	}

	w := &waiter{req: req, ready: make(chan borrowResult, 1)}
	w.elem = p.waiters.PushBack(w)
	p.lock.Unlock()
	log.Debugw("waiting for peer", "description", req.Description, "min_height", req.MinHeight)

	timer := p.clock.Timer(req.Timeout)
	defer timer.Stop()

	var a *Allocation
	select {
	case res := <-w.ready:
		a, err = res.alloc, res.err
	case <-timer.C:
		err = p.abandon(w, ErrNoPeerAvailable)
	case <-ctx.Done():
		err = p.abandon(w, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
	}

	p.metrics.observeBorrow(ctx, borrowStatusOf(err), p.clock.Since(start))
	if a != nil {
		span.SetAttributes(attribute.String("peer", a.PeerID().String()))
	}
	return a, err
}

// abandon withdraws a waiter after timeout or cancellation. If the waiter was served in the
// meantime, the allocation is taken back so that no allocation leaks to a caller that gave up.
func (p *Pool) abandon(w *waiter, reason error) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
		return reason
	}

	res := <-w.ready
	if res.alloc != nil {
		p.releaseLocked(res.alloc, false)
		p.dispatchLocked()
	}
	return reason
}

// Free returns the allocation's peer to the pool.
func (p *Pool) Free(a *Allocation) error {
	if a == nil {
		return ErrUnknownAllocation
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if tracked, ok := p.allocations[a.id]; !ok || tracked != a {
		if a.Err() != nil {
			return a.Err()
		}
		log.Errorw("freeing unknown allocation, possible double free",
			"allocation", a.id, "peer", a.PeerID(), "description", a.description)
		return ErrUnknownAllocation
	}

	p.releaseLocked(a, true)
	log.Debugw("freed peer", "peer", a.PeerID(), "allocation", a.id, "description", a.description)
	p.dispatchLocked()
	return nil
}

func (p *Pool) releaseLocked(a *Allocation, used bool) {
	e, ok := p.registry.find(a.PeerID())
	if !ok || e.allocation != a {
		panic(fmt.Sprintf("sync/peers: tracked %s does not hold its peer", a))
	}
	e.allocation = nil
	if used {
		e.lastFreed = p.clock.Now()
	}
	delete(p.allocations, a.id)
}

// tryAllocateLocked selects a peer for the request and marks it allocated. Selection and
// marking happen under the same lock, so a peer is never handed out twice.
func (p *Pool) tryAllocateLocked(req BorrowRequest) (*Allocation, bool) {
	candidates := p.registry.candidates(req.MinHeight)
	if len(candidates) == 0 {
		return nil, false
	}

	id, ok := req.Policy.Select(candidates)
	if !ok {
		return nil, false
	}
	e, ok := p.registry.find(id)
	if !ok || !e.eligible(req.MinHeight) {
		log.Errorw("selection policy returned ineligible peer", "peer", id, "description", req.Description)
		return nil, false
	}
	return p.allocateLocked(e, req), true
}

func (p *Pool) allocateLocked(e *peerEntry, req BorrowRequest) *Allocation {
	if e.allocation != nil {
		panic(fmt.Sprintf("sync/peers: peer %s is already held by %s", e.id(), e.allocation))
	}

	p.lastAllocID++
	a := newAllocation(p.lastAllocID, e.conn, req, p.clock.Now())
	e.allocation = a
	p.allocations[a.id] = a
	log.Debugw("allocated peer", "peer", e.id(), "allocation", a.id, "description", req.Description)
	return a
}

// dispatchLocked hands out peers to waiting borrowers, oldest first. It runs after every event
// that can make a peer eligible: add, free, wake up and difficulty refresh.
func (p *Pool) dispatchLocked() {
	for el := p.waiters.Front(); el != nil; {
		next := el.Next()
		w := el.Value.(*waiter)
		if a, ok := p.tryAllocateLocked(w.req); ok {
			p.waiters.Remove(el)
			w.elem = nil
			w.ready <- borrowResult{alloc: a}
		}
		el = next
	}
}

func (p *Pool) failWaitersLocked(err error) {
	for el := p.waiters.Front(); el != nil; {
		next := el.Next()
		w := el.Value.(*waiter)
		p.waiters.Remove(el)
		w.elem = nil
		w.ready <- borrowResult{err: err}
		el = next
	}
}

// clampHeight converts a block height to an int64 span attribute, saturating at MaxInt64.
func clampHeight(h uint64) int64 {
	if h > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(h)
}
