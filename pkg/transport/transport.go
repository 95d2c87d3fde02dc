// Package transport provides the per-axis datagram channel to a drive.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrTimeout is returned by Receive when no datagram arrives in time.
var ErrTimeout = errors.New("receive timeout")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("transport closed")

// MaxDatagram bounds the size of a single reply.
const MaxDatagram = 4096

const maxSoftErrors = 64

// Transport is a request/response channel to exactly one axis.
type Transport interface {
	// Send writes one request datagram.
	Send(ctx context.Context, payload []byte) error
	// Receive waits up to timeout for one reply datagram.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Flush discards every datagram already queued and returns how many it dropped.
	Flush() (int, error)
	// Addr returns the remote address.
	Addr() string
	Close() error
}

// UDP is a Transport over a connected UDP socket. Only datagrams from the
// drive's address are delivered to it.
type UDP struct {
	conn *net.UDPConn
	addr string

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// DialUDP opens a socket connected to endpoint (host:port).
func DialUDP(endpoint string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", endpoint, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &UDP{
		conn: conn,
		addr: raddr.String(),
		buf:  make([]byte, MaxDatagram),
	}, nil
}

// Addr implements Transport.
func (u *UDP) Addr() string {
	return u.addr
}

// Send implements Transport.
func (u *UDP) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = u.conn.SetWriteDeadline(deadline)
	} else {
		_ = u.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := u.conn.Write(payload); err != nil {
		if u.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("send to %s: %w", u.addr, err)
	}
	return nil
}

// Receive implements Transport.
func (u *UDP) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(timeout)
	ctxBound := false
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline, ctxBound = d, true
	}
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	n, err := u.conn.Read(u.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			if ctxBound {
				return nil, context.DeadlineExceeded
			}
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("receive from %s: %w", u.addr, err)
	}

	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

// Flush implements Transport. It drains without blocking: a read deadline in
// the past makes every read return immediately once the queue is empty.
func (u *UDP) Flush() (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return 0, ErrClosed
	}
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}

	dropped, soft := 0, 0
	for {
		_, err := u.conn.Read(u.buf)
		if err == nil {
			dropped++
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return dropped, nil
		}
		// ICMP port unreachable from an earlier send surfaces here once per
		// datagram on some platforms; it says nothing about the next cycle.
		if soft++; soft > maxSoftErrors {
			return dropped, fmt.Errorf("flush %s: %w", u.addr, err)
		}
	}
}

// Close implements Transport.
func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	return u.conn.Close()
}

func (u *UDP) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// Compile-time interface satisfaction check.
var _ Transport = (*UDP)(nil)
