package connection_manager

import (
	"context"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/zacjszewczyk/csd-file-server/server/entities"
	"github.com/zacjszewczyk/csd-file-server/server/modules/command_dispatcher"
)

type Manager struct {
	Dispatcher  *command_dispatcher.Dispatcher
	IdleTimeout time.Duration // applied to every read and write, 0 disables
	Log         *slog.Logger
}

func New(dispatcher *command_dispatcher.Dispatcher, idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{Dispatcher: dispatcher, IdleTimeout: idleTimeout, Log: logger}
}

// HandleClient serves one client connection and closes it when done. The
// connection is also closed as soon as ctx is cancelled.
func (m *Manager) HandleClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	session := entities.NewSession(ctx, uuid.NewString(), &deadlineConn{Conn: conn, timeout: m.IdleTimeout}, m.Log)

	defer func() {
		if r := recover(); r != nil {
			session.Log.Error("panic serving client", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	session.Log.Debug("client connected")

	m.Dispatcher.Dispatch(session)

	session.Log.Debug("client disconnected", "duration", time.Since(start))
}

// deadlineConn pushes the connection deadline forward before every read and
// write, so only an idle peer times out, not a long transfer.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
