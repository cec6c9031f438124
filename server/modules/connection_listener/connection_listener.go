package connection_listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// HandlerFunc serves one accepted connection. It owns conn and must close it.
type HandlerFunc func(ctx context.Context, conn net.Conn)

type Listener struct {
	addr     string
	handle   HandlerFunc
	maxConns int
	log      *slog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

// New prepares a listener on addr. maxConns bounds the connections served at
// once, 0 means unbounded.
func New(addr string, handle HandlerFunc, maxConns int, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{addr: addr, handle: handle, maxConns: maxConns, log: logger}
}

// Listen binds the server socket.
func (l *Listener) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("error starting listener: %w", err)
	}
	l.ln = ln
	l.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, serving each one in its
// own goroutine. It returns after every connection it started has finished.
func (l *Listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return errors.New("listener is not bound")
	}

	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	defer l.wg.Wait()
	defer l.ln.Close()

	var slots chan struct{}
	if l.maxConns > 0 {
		slots = make(chan struct{}, l.maxConns)
	}

	var delay time.Duration
	for {
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if slots != nil {
				<-slots
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			delay = nextDelay(delay)
			l.log.Error("error accepting connection", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if slots != nil {
				defer func() { <-slots }()
			}
			l.handle(ctx, conn)
		}()
	}
}

// Start binds addr and serves until ctx is cancelled.
func Start(ctx context.Context, addr string, handle HandlerFunc, maxConns int, logger *slog.Logger) error {
	l := New(addr, handle, maxConns, logger)
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}
