package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/emberchain/ember-node/sync/peers"
)

// Conn is a handshaked status protocol session with a remote peer. It is the peers.SyncPeer the
// pool lends to sync tasks.
type Conn struct {
	host       host.Host
	id         peer.ID
	protocolID protocol.ID
	params     Parameters

	clientID string
	status   peers.Status
}

var _ peers.SyncPeer = (*Conn)(nil)

// Handshake requests the current status of a connected peer and returns the session with it.
func Handshake(ctx context.Context, params Parameters, h host.Host, id peer.ID) (*Conn, error) {
	if id == h.ID() {
		return nil, ErrSelf
	}

	c := &Conn{
		host:       h,
		id:         id,
		protocolID: params.ProtocolID(),
		params:     params,
	}

	ctx, cancel := context.WithTimeout(ctx, params.HandshakeTimeout)
	defer cancel()

	resp, err := c.request(ctx, common.Hash{})
	if err != nil {
		return nil, fmt.Errorf("sync/p2p: handshake with %s: %w", id.ShortString(), err)
	}
	c.clientID = resp.ClientID
	c.status = resp.status()
	return c, nil
}

func (c *Conn) ID() peer.ID {
	return c.id
}

func (c *Conn) ClientID() string {
	return c.clientID
}

// Status returns the status the peer declared during the handshake.
func (c *Conn) Status() peers.Status {
	return c.status
}

// ChainStatus asks the peer for its total difficulty and head number at the given head.
func (c *Conn) ChainStatus(ctx context.Context, head common.Hash) (peers.Status, error) {
	resp, err := c.request(ctx, head)
	if err != nil {
		if ctxErr := contextError(ctx, err); ctxErr != nil {
			return peers.Status{}, ctxErr
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warnw("client: status request to peer failed", "peer", c.id, "head", head, "err", err)
		}
		return peers.Status{}, err
	}
	return resp.status(), nil
}

// Disconnect closes all connections to the peer.
func (c *Conn) Disconnect(reason string) error {
	log.Infow("disconnecting peer", "peer", c.id, "reason", reason)
	return c.host.Network().ClosePeer(c.id)
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s(%s)", c.id.ShortString(), c.clientID)
}

func (c *Conn) request(ctx context.Context, head common.Hash) (*statusResponse, error) {
	stream, err := c.host.NewStream(ctx, c.id, c.protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	c.setStreamDeadlines(ctx, stream)

	if err = writeMsg(stream, &statusRequest{Head: head}); err != nil {
		stream.Reset() //nolint:errcheck
		return nil, fmt.Errorf("failed to write request to stream: %w", err)
	}
	if err = stream.CloseWrite(); err != nil {
		log.Debugw("client: error closing write", "err", err)
	}

	resp := new(statusResponse)
	err = readMsg(stream, c.params.MaxMessageSize, resp)
	if err != nil {
		stream.Reset() //nolint:errcheck
		// server is overloaded and closed the stream
		if errors.Is(err, io.EOF) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read response from stream: %w", err)
	}
	if err = stream.Close(); err != nil {
		log.Debugw("client: closing stream", "err", err)
	}

	switch resp.Code {
	case codeOK:
		if resp.TotalDifficulty == nil {
			return nil, ErrInvalidResponse
		}
		return resp, nil
	case codeNotFound:
		return nil, ErrNotFound
	default:
		return nil, ErrInvalidResponse
	}
}

func (c *Conn) setStreamDeadlines(ctx context.Context, stream network.Stream) {
	// set read/write deadline to use context deadline if it exists
	if dl, ok := ctx.Deadline(); ok {
		err := stream.SetDeadline(dl)
		if err == nil {
			return
		}
		log.Debugw("client: setting deadline", "err", err)
	}

	if err := stream.SetReadDeadline(time.Now().Add(c.params.ReadTimeout)); err != nil {
		log.Debugw("client: setting read deadline", "err", err)
	}
	if err := stream.SetWriteDeadline(time.Now().Add(c.params.WriteTimeout)); err != nil {
		log.Debugw("client: setting write deadline", "err", err)
	}
}
