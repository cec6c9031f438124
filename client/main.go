package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/zacjszewczyk/csd-file-server/client/modules"
	"github.com/zacjszewczyk/csd-file-server/client/ui"
)

type options struct {
	server   string
	port     int
	upload   bool
	download bool
	file     string
	verbose  bool
	repl     bool
	gui      bool
	timeout  time.Duration
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	fs.StringVar(&opts.server, "s", "", "server IP address or host name")
	fs.IntVar(&opts.port, "p", -1, "server port")
	fs.BoolVar(&opts.upload, "u", false, "upload the file given by -f")
	fs.BoolVar(&opts.download, "d", false, "download the file given by -f")
	fs.StringVar(&opts.file, "f", "", "target file name")
	fs.BoolVar(&opts.verbose, "v", false, "verbose output")
	fs.BoolVar(&opts.repl, "repl", false, "start an interactive prompt")
	fs.BoolVar(&opts.gui, "gui", false, "open the desktop client")
	fs.DurationVar(&opts.timeout, "timeout", 0, "give up on a transfer after this long, 0 for no limit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.gui {
		return opts, nil
	}
	if opts.server == "" {
		return nil, errors.New("no server specified")
	}
	if opts.port < 0 || opts.port > 65535 {
		return nil, errors.New("invalid server port specified")
	}
	if opts.repl {
		return opts, nil
	}
	if opts.upload == opts.download {
		return nil, errors.New("exactly one of -u or -d is required")
	}
	if opts.file == "" {
		return nil, errors.New("no file specified")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v. Please try again.\n", err)
		os.Exit(1)
	}

	if opts.gui {
		ui.StartApp(opts.server, portString(opts.port))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := modules.NewClient(opts.server, strconv.Itoa(opts.port))

	if opts.repl {
		client.StartREPL(ctx, os.Stdin, os.Stdout)
		return
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if err := transfer(ctx, client, opts); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func transfer(ctx context.Context, client *modules.Client, opts *options) error {
	if opts.upload {
		if opts.verbose {
			fmt.Printf("Uploading file %s ... ", opts.file)
		}
		if _, err := client.Upload(ctx, opts.file, ""); err != nil {
			return err
		}
	} else {
		if opts.verbose {
			fmt.Printf("Downloading file %s ... ", opts.file)
		}
		if _, err := client.Download(ctx, opts.file, ""); err != nil {
			return err
		}
	}

	if opts.verbose {
		fmt.Println("done.")
	}
	return nil
}

func portString(port int) string {
	if port < 0 {
		return ""
	}
	return strconv.Itoa(port)
}
