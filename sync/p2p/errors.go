package p2p

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrNotFound is returned when a peer does not know the requested head.
var ErrNotFound = errors.New("sync/p2p: head not found")

// ErrInvalidResponse is returned when a peer returns an invalid response or caused an internal
// error. It is used to signal that the peer couldn't serve the data successfully, and should not be
// retried.
var ErrInvalidResponse = errors.New("sync/p2p: invalid response")

// ErrSelf is returned by Handshake when dialing the local node.
var ErrSelf = errors.New("sync/p2p: handshake with self")

// contextError returns the error if an underlying context error exists in the passed context
// or net.Error. Some net.Errors also mean the context deadline was exceeded, but yamux/mocknet
// do not unwrap to a context err.
func contextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if deadline, _ := ctx.Deadline(); deadline.Before(time.Now()) {
			return context.DeadlineExceeded
		}
	}
	return nil
}
