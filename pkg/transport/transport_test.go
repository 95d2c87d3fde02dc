package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// peer is a bare UDP socket standing in for a drive.
func peer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dial(t *testing.T, p *net.UDPConn) *UDP {
	t.Helper()
	u, err := DialUDP(p.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func TestSendReceive(t *testing.T) {
	p := peer(t)
	u := dial(t, p)
	ctx := context.Background()

	require.NoError(t, u.Send(ctx, []byte("ping")))

	buf := make([]byte, 64)
	require.NoError(t, p.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := p.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = p.WriteToUDP([]byte("pong"), from)
	require.NoError(t, err)

	got, err := u.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))
	assert.Equal(t, p.LocalAddr().String(), u.Addr())
}

func TestReceiveTimeout(t *testing.T) {
	p := peer(t)
	u := dial(t, p)

	start := time.Now()
	_, err := u.Receive(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiveHonoursContextDeadline(t *testing.T) {
	p := peer(t)
	u := dial(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := u.Receive(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFlushDropsStaleReplies(t *testing.T) {
	p := peer(t)
	u := dial(t, p)
	ctx := context.Background()

	require.NoError(t, u.Send(ctx, []byte("hello")))
	buf := make([]byte, 64)
	require.NoError(t, p.SetReadDeadline(time.Now().Add(time.Second)))
	_, from, err := p.ReadFromUDP(buf)
	require.NoError(t, err)

	for _, msg := range []string{"late-1", "late-2", "late-3"} {
		_, err := p.WriteToUDP([]byte(msg), from)
		require.NoError(t, err)
	}

	total := 0
	require.Eventually(t, func() bool {
		n, err := u.Flush()
		require.NoError(t, err)
		total += n
		return total == 3
	}, time.Second, 5*time.Millisecond)

	_, err = p.WriteToUDP([]byte("fresh"), from)
	require.NoError(t, err)
	got, err := u.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestFlushEmpty(t *testing.T) {
	p := peer(t)
	u := dial(t, p)

	n, err := u.Flush()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosed(t *testing.T) {
	p := peer(t)
	u := dial(t, p)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())

	_, err := u.Receive(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = u.Flush()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, u.Send(context.Background(), []byte("x")), ErrClosed)
}
