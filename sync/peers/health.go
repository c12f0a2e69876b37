package peers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ReportNoSyncProgress puts the allocation's peer to sleep because it did not advance the sync.
// Severe reports sleep the peer longer and escalate on repetition.
func (p *Pool) ReportNoSyncProgress(a *Allocation, severe bool) {
	p.ReportPeerNoSyncProgress(a.PeerID(), severe)
}

// ReportPeerNoSyncProgress is ReportNoSyncProgress addressed by peer identity.
func (p *Pool) ReportPeerNoSyncProgress(id peer.ID, severe bool) {
	o := outcomeNoProgress
	if severe {
		o = outcomeNoProgressSevere
	}
	p.report(id, o, "")
}

// ReportInvalid puts the allocation's peer to sleep for the maximum backoff because it served
// invalid data. Peers reported invalid too often are evicted and blacklisted.
func (p *Pool) ReportInvalid(a *Allocation, details string) {
	p.ReportPeerInvalid(a.PeerID(), details)
}

// ReportPeerInvalid is ReportInvalid addressed by peer identity.
func (p *Pool) ReportPeerInvalid(id peer.ID, details string) {
	p.report(id, outcomeInvalid, details)
}

// ReportWeakPeer marks the allocation's peer as weak. Weak peers stay awake but are ranked
// below all other peers until a difficulty refresh shows they caught up with the local chain.
func (p *Pool) ReportWeakPeer(a *Allocation) {
	id := a.PeerID()
	p.lock.Lock()
	e, ok := p.registry.find(id)
	if ok {
		e.weak = true
	}
	p.lock.Unlock()

	if ok {
		log.Debugw("peer reported weak", "peer", id, "description", a.description)
		p.metrics.observeReport(context.Background(), reportWeak)
	}
}

// report is the single entry point of all negative reports.
func (p *Pool) report(id peer.ID, o outcome, details string) {
	now := p.clock.Now()

	p.lock.Lock()
	rec, ok := p.offences.Get(id)
	if !ok {
		rec = &offenceRecord{}
		p.offences.Add(id, rec)
	}
	prior := rec.note(o, now, p.params.OffenceCooldown)
	d := backoff(p.params, o, prior)

	e, found := p.registry.find(id)
	if found {
		e.sleep.sleep(now, d)
	}

	var evicted *peerEntry
	evict := o == outcomeInvalid && prior+1 >= p.params.EvictionThreshold
	if evict {
		evicted = p.removeLocked(id, "evicted")
	}
	p.lock.Unlock()

	p.metrics.observeReport(context.Background(), reportKind(o.String()))
	switch o {
	case outcomeInvalid:
		log.Warnw("peer reported invalid",
			"peer", id, "details", details, "backoff", d, "invalid_reports", prior+1)
	default:
		log.Debugw("peer put to sleep", "peer", id, "reason", o, "backoff", d, "known", found)
	}

	if evict {
		p.evict(id, evicted, details)
	}
}

// evict blacklists the peer and drops its connection.
func (p *Pool) evict(id peer.ID, e *peerEntry, details string) {
	log.Warnw("evicting peer", "peer", id, "details", details)
	p.metrics.observeEviction(context.Background())

	if p.blacklist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.params.RequestTimeout)
		err := p.blacklist.Put(ctx, id, details)
		cancel()
		if err != nil {
			log.Errorw("blacklisting peer", "peer", id, "err", err)
		}
	}
	if e != nil {
		if err := e.conn.Disconnect("evicted: " + details); err != nil {
			log.Debugw("disconnecting evicted peer", "peer", id, "err", err)
		}
	}
}

// RefreshTotalDifficulty asynchronously asks the peer for its total difficulty at the given
// head and updates the cached value. Failures keep the previous value.
func (p *Pool) RefreshTotalDifficulty(id peer.ID, head common.Hash) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.state == stateStopped {
		return ErrPoolStopped
	}
	if _, ok := p.registry.find(id); !ok {
		return ErrPeerNotFound
	}
	p.submitRefreshLocked(id, head)
	return nil
}

func (p *Pool) submitRefreshLocked(id peer.ID, head common.Hash) {
	ctx := p.ctx
	p.refresher.Submit(func() {
		p.refresh(ctx, id, head)
	})
}

func (p *Pool) refresh(ctx context.Context, id peer.ID, head common.Hash) {
	p.lock.Lock()
	e, ok := p.registry.find(id)
	if !ok {
		p.lock.Unlock()
		return
	}
	conn := e.conn
	p.lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.params.RequestTimeout)
	defer cancel()

	st, err := conn.ChainStatus(ctx, head)
	if err == nil && st.TotalDifficulty == nil {
		err = errNoDifficulty
	}
	if err != nil {
		log.Warnw("refreshing total difficulty", "peer", id, "head", head, "err", err)
		p.metrics.observeRefresh(ctx, false)
		return
	}
	p.metrics.observeRefresh(ctx, true)

	var local Status
	if p.chain != nil {
		local = p.chain.Head()
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	e, ok = p.registry.find(id)
	if !ok || e.conn != conn {
		return
	}
	higher := st.HeadNumber > e.head
	e.td.Set(st.TotalDifficulty)
	e.head = st.HeadNumber
	if e.weak && local.TotalDifficulty != nil && e.td.Cmp(local.TotalDifficulty) > 0 {
		e.weak = false
		log.Debugw("peer is no longer weak", "peer", id, "total_difficulty", e.td)
	}
	if higher {
		p.dispatchLocked()
	}
}

// monitor runs the wake up sweep and the periodic difficulty refresh until ctx is done.
func (p *Pool) monitor(ctx context.Context) {
	defer close(p.done)

	sweep := p.clock.Ticker(p.params.SweepInterval)
	defer sweep.Stop()
	refresh := p.clock.Ticker(p.params.RefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			p.sweep()
		case <-refresh.C:
			p.refreshAll()
		}
	}
}

// sweep wakes peers whose backoff elapsed and forgets expired offence records. It holds the
// lock only for one pass.
func (p *Pool) sweep() {
	now := p.clock.Now()

	p.lock.Lock()
	defer p.lock.Unlock()

	var woken int
	for _, e := range p.registry.all() {
		if e.sleep.wakeIfDue(now) {
			e.awakeSince = now
			woken++
			log.Debugw("peer woke up", "peer", e.id())
		}
	}

	for _, id := range p.offences.Keys() {
		if rec, ok := p.offences.Peek(id); ok && rec.expired(now, p.params.OffenceCooldown) {
			p.offences.Remove(id)
		}
	}

	if woken > 0 {
		p.dispatchLocked()
	}
}

// refreshAll schedules a difficulty refresh of every awake peer at the local head.
func (p *Pool) refreshAll() {
	if p.chain == nil {
		return
	}
	head := p.chain.Head().HeadHash

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state != stateRunning {
		return
	}
	for _, e := range p.registry.useful() {
		p.submitRefreshLocked(e.id(), head)
	}
}
