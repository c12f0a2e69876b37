package peers

// peerAddedBuffer is the number of undelivered events a subscriber may lag behind before events
// are dropped for it.
const peerAddedBuffer = 32

// PeerAddedEvent is delivered to subscribers for every peer added to the pool.
type PeerAddedEvent struct {
	Peer PeerInfo
}

// SubscribePeerAdded registers a subscriber for peer additions. Events are delivered in the
// order peers were added. The returned function cancels the subscription and closes the
// channel. The channel is also closed when the pool stops.
func (p *Pool) SubscribePeerAdded() (<-chan PeerAddedEvent, func()) {
	p.lock.Lock()
	defer p.lock.Unlock()

	ch := make(chan PeerAddedEvent, peerAddedBuffer)
	if p.state == stateStopped {
		close(ch)
		return ch, func() {}
	}

	p.lastSubID++
	id := p.lastSubID
	p.subs[id] = ch
	return ch, func() {
		p.lock.Lock()
		defer p.lock.Unlock()
		if ch, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
}

// notifyPeerAddedLocked never blocks, a subscriber that does not keep up misses events.
func (p *Pool) notifyPeerAddedLocked(ev PeerAddedEvent) {
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			log.Warnw("dropping peer added event for slow subscriber", "subscriber", id, "peer", ev.Peer.ID)
		}
	}
}
