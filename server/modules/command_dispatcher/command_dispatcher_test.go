package command_dispatcher

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zacjszewczyk/csd-file-server/server/entities"
	"github.com/zacjszewczyk/csd-file-server/server/services/file_transfer_service"
)

// dispatch runs one Dispatch over an in-memory connection, writes first to
// it, and returns everything the server sent back.
func dispatch(t *testing.T, base, first string) string {
	t.Helper()

	srv, cli := net.Pipe()
	defer cli.Close()
	cli.SetDeadline(time.Now().Add(5 * time.Second))

	d := New(file_transfer_service.New(base, 0, nil))
	session := entities.NewSession(context.Background(), "test", srv, slog.New(slog.NewTextHandler(io.Discard, nil)))

	go func() {
		defer srv.Close()
		d.Dispatch(session)
	}()

	go io.WriteString(cli, first)

	out, err := io.ReadAll(cli)
	require.NoError(t, err)
	return string(out)
}

func TestDispatchUnknownCommand(t *testing.T) {
	for _, line := range []string{
		"PING\n",
		"\n",
		"upload\n",
		"UPLOADS\n",
		"XDOWNLOAD\n",
		"PLEASE UPLOAD\n",
		"GET DOWNLOAD\n",
	} {
		base := t.TempDir()
		assert.Equal(t, "ERROR\n", dispatch(t, base, line), "line %q", line)

		entries, err := os.ReadDir(base)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestDispatchOversizedLine(t *testing.T) {
	line := strings.Repeat("A", entities.MaxLineLength+10) + "\n"
	assert.Equal(t, "ERROR\n", dispatch(t, t.TempDir(), line))
}

func TestDispatchRoutesVerbs(t *testing.T) {
	base := t.TempDir()

	srv, cli := net.Pipe()
	defer cli.Close()
	cli.SetDeadline(time.Now().Add(5 * time.Second))

	d := New(file_transfer_service.New(base, 0, nil))
	session := entities.NewSession(context.Background(), "test", srv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() {
		defer srv.Close()
		d.Dispatch(session)
	}()

	br := bufio.NewReader(cli)

	_, err := io.WriteString(cli, "DOWNLOAD ignored tokens\n")
	require.NoError(t, err)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "READY\n", line)

	_, err = io.WriteString(cli, "RETRIEVE nothing-here\n")
	require.NoError(t, err)
	line, err = br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "FILE_NOT_FOUND\n", line)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
