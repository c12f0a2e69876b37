package p2p

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/libp2p/go-msgio"

	"github.com/emberchain/ember-node/sync/peers"
)

type statusCode uint8

const (
	codeOK statusCode = iota
	codeNotFound
	codeInternal
)

// statusRequest asks for the chain status at Head. The zero hash asks for the current head.
type statusRequest struct {
	Head common.Hash
}

type statusResponse struct {
	Code            statusCode
	ClientID        string
	TotalDifficulty *big.Int
	HeadNumber      uint64
	HeadHash        common.Hash
}

func newStatusResponse(clientID string, st peers.Status) *statusResponse {
	td := st.TotalDifficulty
	if td == nil {
		td = new(big.Int)
	}
	return &statusResponse{
		Code:            codeOK,
		ClientID:        clientID,
		TotalDifficulty: td,
		HeadNumber:      st.HeadNumber,
		HeadHash:        st.HeadHash,
	}
}

func (r *statusResponse) status() peers.Status {
	return peers.Status{
		TotalDifficulty: r.TotalDifficulty,
		HeadNumber:      r.HeadNumber,
		HeadHash:        r.HeadHash,
	}
}

// writeMsg writes v as a varint delimited RLP message.
func writeMsg(w io.Writer, v any) error {
	bin, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return msgio.NewVarintWriter(w).WriteMsg(bin)
}

// readMsg reads a varint delimited RLP message of at most maxSize bytes into v.
func readMsg(r io.Reader, maxSize int, v any) error {
	reader := msgio.NewVarintReaderSize(r, maxSize)
	bin, err := reader.ReadMsg()
	if err != nil {
		return err
	}
	defer reader.ReleaseMsg(bin)

	if err := rlp.DecodeBytes(bin, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
