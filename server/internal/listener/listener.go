package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// ConnHandler serves one connection and is responsible for closing it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// Listener accepts connections and dispatches them to a ConnHandler.
type Listener struct {
	ln      net.Listener
	handler ConnHandler
	closed  atomic.Bool
}

// Listen opens a TCP listener on addr.
func Listen(addr string, h ConnHandler) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listener: listen %s: %w", addr, err)
	}
	return New(ln, h), nil
}

// New wraps an existing net.Listener.
func New(ln net.Listener, h ConnHandler) *Listener {
	return &Listener{ln: ln, handler: h}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts until the listener is closed or ctx is cancelled, then
// returns nil. In-flight connections are not waited for.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	slog.Info("listener: accepting connections", "addr", l.ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient failures such as EMFILE: back off and keep accepting.
			delay = nextDelay(delay)
			slog.Warn("listener: accept failed, retrying", "err", err, "retry_in", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		delay = 0
		go l.handler.ServeConn(ctx, conn)
	}
}

// Close stops accepting. It is safe to call more than once.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.ln.Close()
}

func nextDelay(d time.Duration) time.Duration {
	const maxDelay = time.Second
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(d*2, maxDelay)
}
