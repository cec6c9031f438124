package file_transfer_service

import (
	"errors"
	"fmt"
	"io"
)

// receiveChunks copies the upload body from src to dst one buffer at a time.
// A negative size copies until EOF. Only the bytes actually read are written.
func receiveChunks(src io.Reader, dst io.Writer, buf []byte, size, limit int64) (int64, error) {
	var written int64

	for size < 0 || written < size {
		chunk := buf
		if size >= 0 && size-written < int64(len(chunk)) {
			chunk = chunk[:size-written]
		}

		n, err := src.Read(chunk)
		if n > 0 {
			if limit > 0 && written+int64(n) > limit {
				return written, ErrUploadTooLarge
			}
			if _, werr := dst.Write(chunk[:n]); werr != nil {
				return written, fmt.Errorf("write chunk: %w", werr)
			}
			written += int64(n)
		}

		if errors.Is(err, io.EOF) {
			if size >= 0 && written < size {
				return written, fmt.Errorf("got %d of %d bytes: %w", written, size, ErrShortUpload)
			}
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("read chunk: %w", err)
		}
	}

	return written, nil
}

// sendChunks writes exactly size bytes of src to dst, each write carrying only
// the bytes of the preceding read.
func sendChunks(dst io.Writer, src io.Reader, buf []byte, size int64) (int64, error) {
	var sent int64

	for sent < size {
		chunk := buf
		if size-sent < int64(len(chunk)) {
			chunk = chunk[:size-sent]
		}

		n, err := src.Read(chunk)
		if n > 0 {
			if _, werr := dst.Write(chunk[:n]); werr != nil {
				return sent, fmt.Errorf("write chunk: %w", werr)
			}
			sent += int64(n)
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sent, fmt.Errorf("read chunk: %w", err)
		}
	}

	if sent != size {
		return sent, ErrFileChanged
	}
	return sent, nil
}
