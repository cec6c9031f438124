package command_dispatcher

import (
	"errors"
	"io"

	"github.com/zacjszewczyk/csd-file-server/server/entities"
	"github.com/zacjszewczyk/csd-file-server/server/services/file_transfer_service"
)

// maxLoggedCommand bounds how much of an unrecognized line ends up in the log.
const maxLoggedCommand = 64

type HandlerFunc func(*entities.Session, entities.Command) error

type Dispatcher struct {
	commandMap map[entities.Verb]HandlerFunc
}

func New(transfers *file_transfer_service.Service) *Dispatcher {
	return &Dispatcher{
		commandMap: map[entities.Verb]HandlerFunc{
			entities.VerbUpload:   transfers.HandleUpload,
			entities.VerbDownload: transfers.HandleDownload,
		},
	}
}

// Dispatch reads the first line of a connection, classifies it and runs the
// matching handler. Unrecognized input is answered with ERROR. A connection
// serves exactly one command.
func (d *Dispatcher) Dispatch(session *entities.Session) {
	line, err := session.ReadLine()
	if err != nil {
		if errors.Is(err, entities.ErrLineTooLong) {
			session.ReplyError()
			session.Log.Warn("client sent oversized command line")
			return
		}
		if !errors.Is(err, io.EOF) {
			session.Log.Warn("error reading command", "error", err)
		}
		return
	}

	cmd := entities.ParseCommand(line)

	handler, ok := d.commandMap[cmd.Name]
	if !ok {
		session.ReplyError()
		session.Log.Warn("client sent invalid command", "command", truncate(line, maxLoggedCommand))
		return
	}

	session.Log.Debug("command received", "command", cmd.Name, "args", cmd.Args)

	if err := handler(session, cmd); err != nil {
		session.Log.Error("command failed", "command", cmd.Name, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
