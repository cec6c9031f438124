package modules

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts one connection and runs script on it.
func fakeServer(t *testing.T, script func(t *testing.T, conn net.Conn, br *bufio.Reader)) *Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))
		script(t, conn, bufio.NewReader(conn))
	}()
	t.Cleanup(func() { <-done })

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return NewClient(host, port)
}

func readLine(t *testing.T, br *bufio.Reader) string {
	line, err := br.ReadString('\n')
	assert.NoError(t, err)
	return strings.TrimSuffix(line, "\n")
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUploadReaderProtocol(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		assert.Equal(t, "UPLOAD", readLine(t, br))
		io.WriteString(conn, "READY\n")
		assert.Equal(t, "SENDING a.txt 5", readLine(t, br))

		body := make([]byte, 5)
		_, err := io.ReadFull(br, body)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		io.WriteString(conn, "STORED 5\n")
	})

	n, err := c.UploadReader(testContext(t), strings.NewReader("hello world"), 5, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestUploadReaderStreaming(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		assert.Equal(t, "UPLOAD", readLine(t, br))
		io.WriteString(conn, "READY\n")
		assert.Equal(t, "SENDING s.bin", readLine(t, br))

		body, err := io.ReadAll(br)
		assert.NoError(t, err)
		assert.Len(t, body, 3000)
		io.WriteString(conn, "STORED 3000\n")
	})

	n, err := c.UploadReader(testContext(t), bytes.NewReader(make([]byte, 3000)), -1, "s.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), n)
}

func TestUploadReaderStoredMismatch(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		readLine(t, br)
		io.WriteString(conn, "READY\n")
		readLine(t, br)
		io.ReadFull(br, make([]byte, 5))
		io.WriteString(conn, "STORED 4\n")
	})

	_, err := c.UploadReader(testContext(t), strings.NewReader("hello"), 5, "a.txt")
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestUploadReaderRejected(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		readLine(t, br)
		io.WriteString(conn, "READY\n")
		readLine(t, br)
		io.WriteString(conn, "ERROR\n")
	})

	_, err := c.UploadReader(testContext(t), strings.NewReader(""), 0, "../x")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestBeginReplies(t *testing.T) {
	for reply, want := range map[string]error{
		"ERROR\n": ErrRejected,
		"BUSY\n":  ErrNotReady,
	} {
		c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
			readLine(t, br)
			io.WriteString(conn, reply)
		})

		_, err := c.DownloadTo(testContext(t), "a.txt", io.Discard)
		assert.ErrorIs(t, err, want, reply)
	}
}

func TestDownloadTo(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		assert.Equal(t, "DOWNLOAD", readLine(t, br))
		io.WriteString(conn, "READY\n")
		assert.Equal(t, "RETRIEVE a.txt", readLine(t, br))
		io.WriteString(conn, "SENDING 11\nhello world")
	})

	buf := &bytes.Buffer{}
	n, err := c.DownloadTo(testContext(t), "a.txt", buf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "hello world", buf.String())
}

func TestDownloadToShortPayload(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		readLine(t, br)
		io.WriteString(conn, "READY\n")
		readLine(t, br)
		io.WriteString(conn, "SENDING 10\nhello")
	})

	_, err := c.DownloadTo(testContext(t), "a.txt", io.Discard)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDownloadRemovesLocalFileOnFailure(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		readLine(t, br)
		io.WriteString(conn, "READY\n")
		readLine(t, br)
		io.WriteString(conn, "FILE_NOT_FOUND\n")
	})
	local := filepath.Join(t.TempDir(), "out.txt")

	_, err := c.Download(testContext(t), "missing.txt", local)
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = os.Stat(local)
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadRefusesToOverwrite(t *testing.T) {
	local := filepath.Join(t.TempDir(), "exists.txt")
	require.NoError(t, os.WriteFile(local, []byte("keep"), 0o644))

	c := NewClient("127.0.0.1", "1")
	_, err := c.Download(testContext(t), "exists.txt", local)
	assert.ErrorIs(t, err, ErrLocalExists)

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestRemoteNameChecked(t *testing.T) {
	c := NewClient("127.0.0.1", "1")

	for _, name := range []string{"", "two words", "tab\tname"} {
		_, err := c.UploadReader(testContext(t), strings.NewReader(""), 0, name)
		assert.ErrorIs(t, err, ErrBadRemoteName)
		_, err = c.DownloadTo(testContext(t), name, io.Discard)
		assert.ErrorIs(t, err, ErrBadRemoteName)
	}
}

func TestParseCount(t *testing.T) {
	n, ok := parseCount("SENDING 1025", "SENDING")
	assert.True(t, ok)
	assert.Equal(t, int64(1025), n)

	for _, resp := range []string{"SENDING", "SENDING -1", "SENDING x", "STORED 5", "SENDING 1 2"} {
		_, ok := parseCount(resp, "SENDING")
		assert.False(t, ok, resp)
	}
}

func TestREPL(t *testing.T) {
	c := fakeServer(t, func(t *testing.T, conn net.Conn, br *bufio.Reader) {
		readLine(t, br)
		io.WriteString(conn, "READY\n")
		readLine(t, br)
		io.WriteString(conn, "FILE_NOT_FOUND\n")
	})
	dir := t.TempDir()

	in := strings.NewReader("help\n\nbogus\nupload\ndownload nothing.txt " + filepath.Join(dir, "n.txt") + "\nquit\nhelp\n")
	out := &bytes.Buffer{}
	c.StartREPL(testContext(t), in, out)

	text := out.String()
	assert.Contains(t, text, "download <remote-name> [local-file]")
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Contains(t, text, "usage: upload <local-file> [remote-name]")
	assert.Contains(t, text, "server cannot find file")
	assert.Equal(t, 1, strings.Count(text, "commands:"))
}
