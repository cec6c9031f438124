package connection_listener

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// serve starts a listener on a random loopback port and returns its address
// and a channel that yields Serve's result.
func serve(t *testing.T, ctx context.Context, handle HandlerFunc, maxConns int) (string, <-chan error) {
	t.Helper()

	l := New("127.0.0.1:0", handle, maxConns, quietLog)
	require.NoError(t, l.Listen(ctx))

	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	return l.Addr().String(), done
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeHandlesConnectionsConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	addr, done := serve(t, ctx, func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		started <- struct{}{}
		<-release
	}, 0)

	dial(t, addr)
	dial(t, addr)

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("second connection was not served while the first was busy")
		}
	}

	close(release)
	cancel()
	assert.NoError(t, <-done)
}

func TestServeLimitsConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, peak atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	addr, done := serve(t, ctx, func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		n := active.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		started <- struct{}{}
		<-release
		active.Add(-1)
	}, 1)

	dial(t, addr)
	dial(t, addr)

	<-started
	select {
	case <-started:
		t.Fatal("second connection served beyond the limit")
	case <-time.After(200 * time.Millisecond):
	}

	release <- struct{}{}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second connection never served")
	}
	close(release)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), peak.Load())
}

func TestServeWaitsForInFlightConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var finished atomic.Bool
	started := make(chan struct{})
	addr, done := serve(t, ctx, func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		close(started)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}, 0)

	dial(t, addr)
	<-started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.True(t, finished.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestServeRequiresListen(t *testing.T) {
	l := New("127.0.0.1:0", func(context.Context, net.Conn) {}, 0, quietLog)
	assert.Error(t, l.Serve(context.Background()))
	assert.Nil(t, l.Addr())
}

func TestStartFailsWhenAddressInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	err = Start(context.Background(), taken.Addr().String(), func(context.Context, net.Conn) {}, 0, quietLog)
	assert.Error(t, err)
}

func TestNextDelay(t *testing.T) {
	d := nextDelay(0)
	assert.Equal(t, minAcceptDelay, d)
	assert.Equal(t, 2*minAcceptDelay, nextDelay(d))

	for i := 0; i < 20; i++ {
		d = nextDelay(d)
	}
	assert.Equal(t, maxAcceptDelay, d)
}
