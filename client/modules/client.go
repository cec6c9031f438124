package modules

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// ChunkSize matches the server's chunk size for payload copies.
const ChunkSize = 1024

var (
	ErrNotReady        = errors.New("server not ready to transfer file")
	ErrRejected        = errors.New("server rejected the request")
	ErrFileNotFound    = errors.New("server cannot find file")
	ErrUnexpectedReply = errors.New("unexpected reply from server")
	ErrLocalExists     = errors.New("local file already exists")
	ErrBadRemoteName   = errors.New("remote name must be a single non-empty token")
)

// Client talks to one file server. Every operation opens its own connection,
// since the server serves a single command per connection.
type Client struct {
	AddressIP string
	Port      string
	Timeout   time.Duration // dial timeout, 0 for none
}

func NewClient(addressIp, port string) *Client {
	return &Client{
		AddressIP: addressIp,
		Port:      port,
		Timeout:   10 * time.Second,
	}
}

func (c *Client) Address() string {
	return net.JoinHostPort(c.AddressIP, c.Port)
}

// serverConn is one connection to the server with its buffered reader.
type serverConn struct {
	net.Conn
	reader *bufio.Reader
	stop   func() bool
}

func (c *Client) connect(ctx context.Context) (*serverConn, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Address())
	if err != nil {
		return nil, fmt.Errorf("error connecting to server: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	return &serverConn{
		Conn:   conn,
		reader: bufio.NewReader(conn),
		stop:   context.AfterFunc(ctx, func() { conn.Close() }),
	}, nil
}

func (sc *serverConn) Close() error {
	sc.stop()
	return sc.Conn.Close()
}

func (sc *serverConn) SendCommand(command string) error {
	_, err := io.WriteString(sc.Conn, command+"\n")
	return err
}

func (sc *serverConn) ReadResponse() (string, error) {
	resp, err := sc.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && resp != "" {
			return strings.TrimSpace(resp), nil
		}
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// begin sends the verb and waits for READY.
func (sc *serverConn) begin(verb string) error {
	if err := sc.SendCommand(verb); err != nil {
		return fmt.Errorf("send %s: %w", verb, err)
	}

	resp, err := sc.ReadResponse()
	if err != nil {
		return fmt.Errorf("read reply to %s: %w", verb, err)
	}
	switch resp {
	case "READY":
		return nil
	case "ERROR":
		return fmt.Errorf("%s: %w", verb, ErrRejected)
	default:
		return fmt.Errorf("%s got %q: %w", verb, resp, ErrNotReady)
	}
}

func checkRemoteName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%q: %w", name, ErrBadRemoteName)
	}
	return nil
}
