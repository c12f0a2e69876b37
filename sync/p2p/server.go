package p2p

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"

	"github.com/emberchain/ember-node/sync/peers"
)

// StatusSource provides the local chain status served to remote peers. The zero hash stands for
// the current head.
type StatusSource interface {
	Status(hash common.Hash) (peers.Status, bool)
}

// Server answers status requests of remote peers.
type Server struct {
	host       host.Host
	protocolID protocol.ID
	clientID   string
	source     StatusSource

	params Parameters

	// NumRateLimited is the number of requests dropped because of the concurrency limit.
	NumRateLimited   atomic.Int64
	parallelRequests atomic.Int64
}

// NewServer creates a new status protocol server.
func NewServer(params Parameters, host host.Host, source StatusSource, clientID string) (*Server, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("sync/p2p: server creation failed: %w", err)
	}

	return &Server{
		host:       host,
		protocolID: params.ProtocolID(),
		clientID:   clientID,
		source:     source,
		params:     params,
	}, nil
}

func (s *Server) Start(context.Context) error {
	s.host.SetStreamHandler(s.protocolID, s.recoveryHandler(s.rateLimitHandler(s.handleStream)))
	log.Infow("server: listening for status requests", "protocol", s.protocolID)
	return nil
}

func (s *Server) Stop(context.Context) error {
	s.host.RemoveStreamHandler(s.protocolID)
	return nil
}

func (s *Server) handleStream(stream network.Stream) {
	logger := log.With("peer", stream.Conn().RemotePeer().String())

	req, err := s.readRequest(logger, stream)
	if err != nil {
		logger.Warnw("server: reading status request", "err", err)
		stream.Reset() //nolint:errcheck
		return
	}

	resp := &statusResponse{Code: codeNotFound, ClientID: s.clientID, TotalDifficulty: new(big.Int)}
	if st, ok := s.source.Status(req.Head); ok {
		resp = newStatusResponse(s.clientID, st)
	} else {
		logger.Debugw("server: requested head not found", "head", req.Head)
	}

	err = stream.SetWriteDeadline(time.Now().Add(s.params.WriteTimeout))
	if err != nil {
		logger.Debugw("server: set write deadline", "err", err)
	}
	if err = writeMsg(stream, resp); err != nil {
		logger.Warnw("server: writing status response", "err", err)
		stream.Reset() //nolint:errcheck
		return
	}

	if err = stream.Close(); err != nil {
		logger.Debugw("server: closing stream", "err", err)
	}
}

func (s *Server) readRequest(logger *zap.SugaredLogger, stream network.Stream) (*statusRequest, error) {
	err := stream.SetReadDeadline(time.Now().Add(s.params.ReadTimeout))
	if err != nil {
		logger.Debugw("server: set read deadline", "err", err)
	}

	req := new(statusRequest)
	if err = readMsg(stream, s.params.MaxMessageSize, req); err != nil {
		return nil, err
	}
	if err = stream.CloseRead(); err != nil {
		logger.Debugw("server: closing read", "err", err)
	}
	return req, nil
}

func (s *Server) rateLimitHandler(handler network.StreamHandler) network.StreamHandler {
	return func(stream network.Stream) {
		current := s.parallelRequests.Add(1)
		defer s.parallelRequests.Add(-1)

		if current > int64(s.params.ConcurrencyLimit) {
			s.NumRateLimited.Add(1)
			log.Debug("server: concurrency limit reached")
			if err := stream.Close(); err != nil {
				log.Debugw("server: closing stream", "err", err)
			}
			return
		}
		handler(stream)
	}
}

func (s *Server) recoveryHandler(handler network.StreamHandler) network.StreamHandler {
	return func(stream network.Stream) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("server: PANIC while handling request", "panic", r)
				stream.Reset() //nolint:errcheck
			}
		}()
		handler(stream)
	}
}
