package peers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/emberchain/ember-node/libs/utils"
)

const (
	borrowResultKey              = "result"
	borrowSuccess   borrowStatus = "success"
	borrowNoPeer    borrowStatus = "no_peer"
	borrowCancelled borrowStatus = "cancelled"
	borrowStopped   borrowStatus = "stopped"
	isInstantKey                 = "is_instant"

	reportKindKey            = "kind"
	reportWeak    reportKind = "weak"

	refreshSuccessKey = "success"

	peerStateKey                 = "state"
	peerStateAll       peerState = "all"
	peerStateUseful    peerState = "useful"
	peerStateAsleep    peerState = "asleep"
	peerStateAllocated peerState = "allocated"
)

var meter = otel.Meter("sync_peer_pool")

type (
	borrowStatus string
	reportKind    string
	peerState     string
)

type metrics struct {
	borrow         metric.Int64Counter         // attributes: result, is_instant
	borrowWaitTime metric.Float64Histogram     // attributes: result
	reports        metric.Int64Counter         // attributes: kind
	evictions      metric.Int64Counter
	refreshes      metric.Int64Counter         // attributes: success
	peers          metric.Int64ObservableGauge // attributes: state
	waiters        metric.Int64ObservableGauge
}

func initMetrics(p *Pool) (*metrics, error) {
	borrow, err := meter.Int64Counter("sync_peer_pool_borrow_counter",
		metric.WithDescription("borrow calls by result"))
	if err != nil {
		return nil, err
	}

	borrowWaitTime, err := meter.Float64Histogram("sync_peer_pool_borrow_wait_time",
		metric.WithDescription("time(s) borrowers waited for a peer, observed only for waiting borrows"))
	if err != nil {
		return nil, err
	}

	reports, err := meter.Int64Counter("sync_peer_pool_report_counter",
		metric.WithDescription("negative peer reports by kind"))
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("sync_peer_pool_evictions",
		metric.WithDescription("peers evicted for repeated invalid data"))
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter("sync_peer_pool_refresh_counter",
		metric.WithDescription("total difficulty refreshes by outcome"))
	if err != nil {
		return nil, err
	}

	peers, err := meter.Int64ObservableGauge("sync_peer_pool_peers",
		metric.WithDescription("pooled peers by state"))
	if err != nil {
		return nil, err
	}

	waiters, err := meter.Int64ObservableGauge("sync_peer_pool_waiters",
		metric.WithDescription("borrowers waiting for a peer"))
	if err != nil {
		return nil, err
	}

	m := &metrics{
		borrow:         borrow,
		borrowWaitTime: borrowWaitTime,
		reports:        reports,
		evictions:      evictions,
		refreshes:      refreshes,
		peers:          peers,
		waiters:        waiters,
	}

	callback := func(_ context.Context, observer metric.Observer) error {
		s := p.stats()
		for state, amount := range s.peers {
			observer.ObserveInt64(peers, amount,
				metric.WithAttributes(attribute.String(peerStateKey, string(state))))
		}
		observer.ObserveInt64(waiters, s.waiters)
		return nil
	}
	_, err = meter.RegisterCallback(callback, peers, waiters)
	if err != nil {
		return nil, fmt.Errorf("registering metrics callback: %w", err)
	}
	return m, nil
}

func borrowStatusOf(err error) borrowStatus {
	switch {
	case err == nil:
		return borrowSuccess
	case errors.Is(err, ErrCancelled):
		return borrowCancelled
	case errors.Is(err, ErrPoolStopped):
		return borrowStopped
	default:
		return borrowNoPeer
	}
}

func (m *metrics) observeBorrow(ctx context.Context, result borrowStatus, waitTime time.Duration) {
	if m == nil {
		return
	}
	ctx = utils.Detach(ctx)

	if waitTime > 0 {
		m.borrowWaitTime.Record(ctx, waitTime.Seconds(),
			metric.WithAttributes(attribute.String(borrowResultKey, string(result))))
	}
	m.borrow.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(borrowResultKey, string(result)),
			attribute.Bool(isInstantKey, waitTime == 0)))
}

func (m *metrics) observeReport(ctx context.Context, kind reportKind) {
	if m == nil {
		return
	}
	m.reports.Add(ctx, 1,
		metric.WithAttributes(attribute.String(reportKindKey, string(kind))))
}

func (m *metrics) observeEviction(ctx context.Context) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, 1)
}

func (m *metrics) observeRefresh(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.refreshes.Add(utils.Detach(ctx), 1,
		metric.WithAttributes(attribute.Bool(refreshSuccessKey, success)))
}

type stats struct {
	peers   map[peerState]int64
	waiters int64
}

func (p *Pool) stats() stats {
	p.lock.Lock()
	defer p.lock.Unlock()

	s := stats{
		peers:   make(map[peerState]int64),
		waiters: int64(p.waiters.Len()),
	}
	for _, e := range p.registry.all() {
		s.peers[peerStateAll]++
		if e.sleep.asleep() {
			s.peers[peerStateAsleep]++
		} else {
			s.peers[peerStateUseful]++
		}
		if e.allocation != nil {
			s.peers[peerStateAllocated]++
		}
	}
	return s
}
