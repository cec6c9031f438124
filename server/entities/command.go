package entities

import (
	"strings"
)

// Verb is the operation a client asks for on a fresh connection.
type Verb string

const (
	VerbUpload   Verb = "UPLOAD"
	VerbDownload Verb = "DOWNLOAD"
)

// Control messages. Each one travels as a single '\n' terminated line.
const (
	ReplyReady        = "READY"
	ReplyError        = "ERROR"
	ReplyFileNotFound = "FILE_NOT_FOUND"
	ReplySending      = "SENDING"
	ReplyStored       = "STORED"
)

const (
	// ChunkSize bounds every read and write of file payload.
	ChunkSize = 1024
	// MaxLineLength bounds a control line, terminator included.
	MaxLineLength = 1024
)

type Command struct {
	Name Verb
	Args []string
}

// ParseCommand splits a control line into its verb and arguments.
// The verb is the first whitespace delimited token and is matched exactly,
// so "upload" or "XUPLOAD" are not recognized.
func ParseCommand(line string) Command {
	parts := strings.Fields(line)

	if len(parts) == 0 {
		return Command{Name: "", Args: []string{}}
	}

	return Command{
		Name: Verb(parts[0]),
		Args: parts[1:],
	}
}

// Arg returns the i-th argument or "" when the line was too short.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
