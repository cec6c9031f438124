package modules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Upload stores the local file under remote on the server. An empty remote
// uses the local file's base name.
func (c *Client) Upload(ctx context.Context, local, remote string) (int64, error) {
	file, err := os.Open(local)
	if err != nil {
		return 0, fmt.Errorf("file to upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("file to upload: %s is not a regular file", local)
	}

	if remote == "" {
		remote = filepath.Base(local)
	}
	return c.UploadReader(ctx, file, info.Size(), remote)
}

// UploadReader streams size bytes of r to the server under remote. A negative
// size sends r until EOF and marks the end by half-closing the connection.
func (c *Client) UploadReader(ctx context.Context, r io.Reader, size int64, remote string) (int64, error) {
	if err := checkRemoteName(remote); err != nil {
		return 0, err
	}

	sc, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	if err := sc.begin("UPLOAD"); err != nil {
		return 0, err
	}

	header := "SENDING " + remote
	if size >= 0 {
		header += " " + strconv.FormatInt(size, 10)
		r = io.LimitReader(r, size)
	}
	if err := sc.SendCommand(header); err != nil {
		return 0, fmt.Errorf("send upload header: %w", err)
	}

	sent, err := io.CopyBuffer(sc.Conn, r, make([]byte, ChunkSize))
	if err != nil {
		// The server may have refused the header and hung up mid payload.
		if resp, rerr := sc.ReadResponse(); rerr == nil && resp == "ERROR" {
			return sent, ErrRejected
		}
		return sent, fmt.Errorf("send file: %w", err)
	}
	if size >= 0 && sent != size {
		return sent, fmt.Errorf("sent %d of %d bytes: %w", sent, size, io.ErrUnexpectedEOF)
	}
	if size < 0 {
		tcp, ok := sc.Conn.(*net.TCPConn)
		if !ok {
			return sent, errors.New("streaming upload needs a TCP connection")
		}
		if err := tcp.CloseWrite(); err != nil {
			return sent, fmt.Errorf("close write side: %w", err)
		}
	}

	resp, err := sc.ReadResponse()
	if err != nil {
		return sent, fmt.Errorf("read upload result: %w", err)
	}
	if resp == "ERROR" {
		return sent, ErrRejected
	}

	stored, ok := parseCount(resp, "STORED")
	if !ok {
		return sent, fmt.Errorf("%q: %w", resp, ErrUnexpectedReply)
	}
	if stored != sent {
		return sent, fmt.Errorf("server stored %d of %d bytes: %w", stored, sent, ErrUnexpectedReply)
	}
	return stored, nil
}

// Download saves remote into the local path. An existing local file is never
// overwritten, and a failed download leaves no local file behind.
func (c *Client) Download(ctx context.Context, remote, local string) (int64, error) {
	if local == "" {
		local = remote
	}

	file, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, fmt.Errorf("%s: %w", local, ErrLocalExists)
		}
		return 0, err
	}

	n, err := c.DownloadTo(ctx, remote, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return n, err
	}
	return n, nil
}

// DownloadTo writes the content of remote to w.
func (c *Client) DownloadTo(ctx context.Context, remote string, w io.Writer) (int64, error) {
	if err := checkRemoteName(remote); err != nil {
		return 0, err
	}

	sc, err := c.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()

	if err := sc.begin("DOWNLOAD"); err != nil {
		return 0, err
	}
	if err := sc.SendCommand("RETRIEVE " + remote); err != nil {
		return 0, fmt.Errorf("send file name: %w", err)
	}

	resp, err := sc.ReadResponse()
	if err != nil {
		return 0, fmt.Errorf("read download reply: %w", err)
	}
	switch resp {
	case "FILE_NOT_FOUND":
		return 0, fmt.Errorf("%s: %w", remote, ErrFileNotFound)
	case "ERROR":
		return 0, ErrRejected
	}

	size, ok := parseCount(resp, "SENDING")
	if !ok {
		return 0, fmt.Errorf("%q: %w", resp, ErrUnexpectedReply)
	}

	n, err := io.CopyBuffer(w, io.LimitReader(sc.reader, size), make([]byte, ChunkSize))
	if err != nil {
		return n, fmt.Errorf("receive file: %w", err)
	}
	if n != size {
		return n, fmt.Errorf("received %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
	}
	return n, nil
}

// parseCount parses "<token> <n>" replies.
func parseCount(resp, token string) (int64, bool) {
	fields := strings.Fields(resp)
	if len(fields) != 2 || fields[0] != token {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
