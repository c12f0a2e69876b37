package pidstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
)

var (
	storePrefix = datastore.NewKey("pidstore/blacklist")

	log = logging.Logger("pidstore")
)

// Entry is a persisted record of a blacklisted peer.
type Entry struct {
	ID     peer.ID   `json:"id"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// PeerIDStore persists blacklisted peers to disk, so they stay rejected across restarts.
type PeerIDStore struct {
	ds  datastore.Datastore
	now func() time.Time
}

// NewPeerIDStore creates a new peer ID store backed by the given datastore. Corrupted entries
// are dropped.
func NewPeerIDStore(ctx context.Context, ds datastore.Datastore) (*PeerIDStore, error) {
	pidstore := &PeerIDStore{
		ds:  namespace.Wrap(ds, storePrefix),
		now: time.Now,
	}

	entries, err := pidstore.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Infow("Loaded blacklisted peers from disk", "amount", len(entries))
	return pidstore, nil
}

// Has reports whether the peer is blacklisted.
func (p *PeerIDStore) Has(ctx context.Context, id peer.ID) (bool, error) {
	has, err := p.ds.Has(ctx, peerKey(id))
	if err != nil {
		return false, fmt.Errorf("pidstore: checking peer: %w", err)
	}
	return has, nil
}

// Get returns the blacklist entry of the peer.
func (p *PeerIDStore) Get(ctx context.Context, id peer.ID) (Entry, error) {
	bin, err := p.ds.Get(ctx, peerKey(id))
	if err != nil {
		return Entry{}, fmt.Errorf("pidstore: loading peer from datastore: %w", err)
	}

	var e Entry
	if err = json.Unmarshal(bin, &e); err != nil {
		return Entry{}, fmt.Errorf("pidstore: unmarshalling entry: %w", err)
	}
	return e, nil
}

// Put persists the peer as blacklisted. Blacklisting a peer again overwrites the reason.
func (p *PeerIDStore) Put(ctx context.Context, id peer.ID, reason string) error {
	bin, err := json.Marshal(Entry{ID: id, Reason: reason, Since: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("pidstore: marshal entry: %w", err)
	}

	if err = p.ds.Put(ctx, peerKey(id), bin); err != nil {
		return fmt.Errorf("pidstore: error writing to datastore: %w", err)
	}
	if err = p.ds.Sync(ctx, peerKey(id)); err != nil {
		return fmt.Errorf("pidstore: syncing datastore: %w", err)
	}

	log.Infow("Blacklisted peer", "peer", id, "reason", reason)
	return nil
}

// Delete lifts the blacklisting of the peer.
func (p *PeerIDStore) Delete(ctx context.Context, id peer.ID) error {
	if err := p.ds.Delete(ctx, peerKey(id)); err != nil {
		return fmt.Errorf("pidstore: deleting peer: %w", err)
	}
	log.Infow("Removed peer from blacklist", "peer", id)
	return nil
}

// Load returns all blacklisted peers.
func (p *PeerIDStore) Load(ctx context.Context) ([]Entry, error) {
	results, err := p.ds.Query(ctx, query.Query{})
	if err != nil {
		return nil, fmt.Errorf("pidstore: querying datastore: %w", err)
	}
	defer results.Close()

	var (
		entries   []Entry
		corrupted []datastore.Key
	)
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("pidstore: reading datastore: %w", res.Error)
		}

		var e Entry
		if err := json.Unmarshal(res.Value, &e); err != nil || e.ID == "" {
			corrupted = append(corrupted, datastore.NewKey(res.Key))
			continue
		}
		entries = append(entries, e)
	}

	for _, key := range corrupted {
		log.Warnw("pidstore: corrupted entry detected, removing...", "key", key)
		if err := p.ds.Delete(ctx, key); err != nil && !errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("pidstore: error removing corrupted entry: %w", err)
		}
	}
	return entries, nil
}

func peerKey(id peer.ID) datastore.Key {
	return datastore.NewKey(id.String())
}
