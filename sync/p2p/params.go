package p2p

import (
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/protocol"
)

const protocolPrefix = "/ember/status/1.0.0"

var log = logging.Logger("sync/p2p")

// Parameters is the set of parameters of the status protocol.
type Parameters struct {
	// ReadTimeout sets the timeout for reading messages from the stream.
	ReadTimeout time.Duration

	// WriteTimeout sets the timeout for writing messages to the stream.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the status exchange with a newly connected peer.
	HandshakeTimeout time.Duration

	// MaxMessageSize is the largest status message accepted from a peer.
	MaxMessageSize int

	// ConcurrencyLimit is the maximum number of concurrently handled inbound streams.
	ConcurrencyLimit int

	// AdoptConcurrency bounds the handshakes run in parallel for peers that were connected before
	// the tracker started.
	AdoptConcurrency int

	// NetworkID is appended to the protocol ID so that nodes of different networks do not pair.
	NetworkID string
}

func DefaultParameters() Parameters {
	return Parameters{
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1024,
		ConcurrencyLimit: 32,
		AdoptConcurrency: 8,
	}
}

const errSuffix = "value should be positive and non-zero"

func (p *Parameters) Validate() error {
	if p.ReadTimeout <= 0 {
		return fmt.Errorf("invalid stream read timeout: %s", errSuffix)
	}
	if p.WriteTimeout <= 0 {
		return fmt.Errorf("invalid stream write timeout: %s", errSuffix)
	}
	if p.HandshakeTimeout <= 0 {
		return fmt.Errorf("invalid handshake timeout: %s", errSuffix)
	}
	if p.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %s", errSuffix)
	}
	if p.ConcurrencyLimit < 1 {
		return fmt.Errorf("invalid concurrency limit: value should be greater than 0")
	}
	if p.AdoptConcurrency < 1 {
		return fmt.Errorf("invalid adopt concurrency: value should be greater than 0")
	}
	return nil
}

// ProtocolID returns the status protocol ID for the network.
func (p *Parameters) ProtocolID() protocol.ID {
	if p.NetworkID == "" {
		return protocolPrefix
	}
	return protocol.ID(fmt.Sprintf("%s/%s", protocolPrefix, p.NetworkID))
}
