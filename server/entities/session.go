package entities

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
)

var ErrLineTooLong = errors.New("control line exceeds maximum length")

// Session holds the state of one client connection. A session serves exactly
// one command and is discarded when the connection closes.
type Session struct {
	ID     string          // connection id, used in logs and partial file names
	Ctx    context.Context // cancelled when the server shuts down
	Conn   net.Conn
	Reader *bufio.Reader
	Buffer []byte // chunk buffer owned by this connection only
	Remote string
	Log    *slog.Logger
}

// NewSession creates the session for a freshly accepted connection.
func NewSession(ctx context.Context, id string, conn net.Conn, logger *slog.Logger) *Session {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		ID:     id,
		Ctx:    ctx,
		Conn:   conn,
		Reader: bufio.NewReaderSize(conn, MaxLineLength),
		Buffer: make([]byte, ChunkSize),
		Remote: remote,
		Log:    logger.With("conn_id", id, "remote", remote),
	}
}

// Reply sends a control message to the client.
func (s *Session) Reply(msg string) error {
	if _, err := io.WriteString(s.Conn, msg+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", msg, err)
	}
	return nil
}

// ReplyError tells the client its request failed. The caller is already on
// an error path, so a failed write is only logged.
func (s *Session) ReplyError() {
	if err := s.Reply(ReplyError); err != nil {
		s.Log.Debug("could not send error reply", "error", err)
	}
}

// Replyf formats and sends a control message.
func (s *Session) Replyf(format string, args ...any) error {
	return s.Reply(fmt.Sprintf(format, args...))
}

// ReadLine reads one control line, without its terminator. A final line cut
// short by EOF is still returned.
func (s *Session) ReadLine() (string, error) {
	line, err := s.Reader.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
	case err != nil:
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}
