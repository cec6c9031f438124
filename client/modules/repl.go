package modules

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const replHelp = `commands:
  upload <local-file> [remote-name]
  download <remote-name> [local-file]
  help
  quit`

// StartREPL reads commands from in until quit or EOF, running each transfer
// against the server and reporting on out.
func (c *Client) StartREPL(ctx context.Context, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "csdfs> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			return

		case "help":
			fmt.Fprintln(out, replHelp)

		case "upload", "put":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: upload <local-file> [remote-name]")
				continue
			}
			n, err := c.Upload(ctx, fields[1], argOr(fields, 2, ""))
			if err != nil {
				fmt.Fprintln(out, "Error:", err)
				continue
			}
			fmt.Fprintf(out, "uploaded %s (%d bytes)\n", fields[1], n)

		case "download", "get":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: download <remote-name> [local-file]")
				continue
			}
			n, err := c.Download(ctx, fields[1], argOr(fields, 2, ""))
			if err != nil {
				fmt.Fprintln(out, "Error:", err)
				continue
			}
			fmt.Fprintf(out, "downloaded %s (%d bytes)\n", fields[1], n)

		default:
			fmt.Fprintf(out, "unknown command %q, type help\n", fields[0])
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func argOr(fields []string, i int, def string) string {
	if i < len(fields) {
		return fields[i]
	}
	return def
}
