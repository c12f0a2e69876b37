package p2p

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/crypto"
)

var keyKey = datastore.NewKey("/p2p/key")

// Key provides a networking private key of the node. The key is generated on first use and
// persisted to the datastore.
func Key(ctx context.Context, ds datastore.Batching) (crypto.PrivKey, error) {
	bin, err := ds.Get(ctx, keyKey)
	if err == nil {
		return crypto.UnmarshalPrivateKey(bin)
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return nil, fmt.Errorf("p2p: loading key: %w", err)
	}

	// No existing private key in the datastore so generate a new one
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	bin, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err = ds.Put(ctx, keyKey, bin); err != nil {
		return nil, fmt.Errorf("p2p: saving key: %w", err)
	}
	log.Info("Generated new networking key")
	return priv, nil
}
