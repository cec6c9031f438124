package file_transfer_service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/zacjszewczyk/csd-file-server/server/entities"
	fsm "github.com/zacjszewczyk/csd-file-server/server/modules/file_system_manager"
	"github.com/zacjszewczyk/csd-file-server/server/modules/transfer_catalog"
)

const catalogTimeout = 2 * time.Second

var (
	ErrMissingName    = errors.New("missing file name")
	ErrBadSize        = errors.New("invalid upload size")
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
	ErrShortUpload    = errors.New("upload ended before announced size")
	ErrFileChanged    = errors.New("file size changed while sending")
)

// Service implements the two transfer verbs against one base directory.
type Service struct {
	BaseDir       string
	MaxUploadSize int64 // 0 means unlimited
	Catalog       transfer_catalog.Catalog
}

func New(baseDir string, maxUploadSize int64, catalog transfer_catalog.Catalog) *Service {
	if catalog == nil {
		catalog = transfer_catalog.Nop{}
	}
	return &Service{BaseDir: baseDir, MaxUploadSize: maxUploadSize, Catalog: catalog}
}

// HandleUpload receives a file from the client.
//
//	S: READY
//	C: SENDING <name> [<size>]
//	C: payload, <size> bytes or until the client half-closes
//	S: STORED <n> | ERROR
func (s *Service) HandleUpload(session *entities.Session, cmd entities.Command) error {
	if err := session.Reply(entities.ReplyReady); err != nil {
		return err
	}

	line, err := session.ReadLine()
	if err != nil {
		return fmt.Errorf("read upload header: %w", err)
	}
	header := entities.ParseCommand(line)

	name := header.Arg(0)
	if name == "" {
		session.ReplyError()
		return ErrMissingName
	}

	size, err := parseSize(header.Arg(1))
	if err != nil {
		session.ReplyError()
		return err
	}
	if s.MaxUploadSize > 0 && size > s.MaxUploadSize {
		session.ReplyError()
		return fmt.Errorf("%q announced %d bytes: %w", name, size, ErrUploadTooLarge)
	}

	target, err := fsm.ResolveTarget(s.BaseDir, name)
	if err != nil {
		session.ReplyError()
		return fmt.Errorf("reject upload: %w", err)
	}

	part, err := fsm.CreatePartial(s.BaseDir, session.ID)
	if err != nil {
		session.ReplyError()
		return err
	}

	session.Log.Info("receiving file", "name", name, "size", size)
	start := time.Now()

	n, err := receiveChunks(session.Reader, part, session.Buffer, size, s.MaxUploadSize)
	if err != nil {
		fsm.DiscardPartial(part)
		session.ReplyError()
		return fmt.Errorf("receive %q after %d bytes: %w", name, n, err)
	}

	if err := fsm.CommitPartial(part, target); err != nil {
		os.Remove(part.Name())
		session.ReplyError()
		return err
	}

	if err := session.Replyf("%s %d", entities.ReplyStored, n); err != nil {
		session.Log.Warn("stored file but could not acknowledge", "name", name, "error", err)
	}

	ctx, cancel := catalogContext(session.Ctx)
	defer cancel()
	err = s.Catalog.RecordUpload(ctx, transfer_catalog.Upload{
		Name:     name,
		Size:     n,
		StoredAt: time.Now(),
		Remote:   session.Remote,
		ConnID:   session.ID,
	})
	if err != nil {
		session.Log.Warn("catalog upload record failed", "name", name, "error", err)
	}

	session.Log.Info("received file", "name", name, "bytes", n, "duration", time.Since(start))
	return nil
}

// HandleDownload sends a file to the client.
//
//	S: READY
//	C: <token> <name>
//	S: FILE_NOT_FOUND | SENDING <size> followed by exactly <size> bytes
func (s *Service) HandleDownload(session *entities.Session, cmd entities.Command) error {
	if err := session.Reply(entities.ReplyReady); err != nil {
		return err
	}

	line, err := session.ReadLine()
	if err != nil {
		return fmt.Errorf("read download request: %w", err)
	}
	request := entities.ParseCommand(line)

	name := request.Arg(0)
	if name == "" {
		session.ReplyError()
		return ErrMissingName
	}

	target, err := fsm.ResolveTarget(s.BaseDir, name)
	if err != nil {
		session.Log.Warn("rejected download name", "error", err)
		return session.Reply(entities.ReplyFileNotFound)
	}

	f, size, err := fsm.OpenForRead(target)
	if err != nil {
		if !os.IsNotExist(err) {
			session.Log.Warn("cannot open file for download", "name", name, "error", err)
		}
		return session.Reply(entities.ReplyFileNotFound)
	}
	defer f.Close()

	if err := session.Replyf("%s %d", entities.ReplySending, size); err != nil {
		return err
	}

	session.Log.Info("sending file", "name", name, "size", size)
	start := time.Now()

	n, err := sendChunks(session.Conn, f, session.Buffer, size)
	if err != nil {
		return fmt.Errorf("send %q after %d of %d bytes: %w", name, n, size, err)
	}

	ctx, cancel := catalogContext(session.Ctx)
	defer cancel()
	if err := s.Catalog.RecordDownload(ctx, name); err != nil {
		session.Log.Warn("catalog download record failed", "name", name, "error", err)
	}

	session.Log.Info("sent file", "name", name, "bytes", n, "duration", time.Since(start))
	return nil
}

// parseSize reads the optional size token. -1 means the size is unknown and
// the payload ends at the client's half-close.
func parseSize(tok string) (int64, error) {
	if tok == "" {
		return -1, nil
	}
	size, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%q: %w", tok, ErrBadSize)
	}
	return size, nil
}

// Catalog writes outlive a shutdown so a finished transfer is still recorded.
func catalogContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), catalogTimeout)
}
