package server_config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	fsm "github.com/zacjszewczyk/csd-file-server/server/modules/file_system_manager"
	"github.com/zacjszewczyk/csd-file-server/server/modules/logger"
)

const usageText = `usage: server -p SERVER_PORT -d TARGET_DIRECTORY [options]
  -p  The port on which to make the file server available.
  -d  The directory in which to store files, and from which to serve them.
  -h  Display this help menu.
Note: The order of the parameters is unimportant.

Options:`

var (
	ErrMissingPort = errors.New("server port not specified")
	ErrBadPort     = errors.New("invalid server port")
	ErrMissingDir  = errors.New("target directory not specified")
	ErrNoDir       = errors.New("target directory does not exist")
	ErrBadOption   = errors.New("invalid option")
)

type Config struct {
	Port          int
	Dir           string
	Host          string
	IdleTimeout   time.Duration
	MaxUploadSize int64
	MaxConns      int
	RedisAddr     string
	LogLevel      string
	LogFormat     string
}

// Addr is the address the server binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func newFlagSet(name string, cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.IntVar(&cfg.Port, "p", -1, "port to listen on (0-65535)")
	fs.StringVar(&cfg.Dir, "d", "", "directory to store and serve files")
	fs.StringVar(&cfg.Host, "addr", "", "host or IP to bind, empty for all interfaces")
	fs.DurationVar(&cfg.IdleTimeout, "timeout", 30*time.Second, "drop clients idle for this long, 0 disables")
	fs.Int64Var(&cfg.MaxUploadSize, "max-upload", 0, "largest accepted upload in bytes, 0 for no limit")
	fs.IntVar(&cfg.MaxConns, "max-conns", 0, "maximum concurrent connections, 0 for no limit")
	fs.StringVar(&cfg.RedisAddr, "redis", "", "redis address for the transfer catalog, empty disables it")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text or json")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	return fs
}

// Parse reads the server flags from args (without the program name) and
// validates them. flag.ErrHelp is returned when help was requested.
func Parse(name string, args []string, output io.Writer) (*Config, error) {
	cfg := &Config{}
	fs := newFlagSet(name, cfg, output)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrBadOption, fs.Arg(0))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a server cannot start without.
func (c *Config) Validate() error {
	if c.Port == -1 {
		return ErrMissingPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrBadPort, c.Port)
	}

	if c.Dir == "" {
		return ErrMissingDir
	}
	if !fsm.DirExists(c.Dir) {
		return fmt.Errorf("%w: %s", ErrNoDir, c.Dir)
	}

	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: -timeout must not be negative", ErrBadOption)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("%w: -max-upload must not be negative", ErrBadOption)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("%w: -max-conns must not be negative", ErrBadOption)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOption, err)
	}
	if _, err := logger.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOption, err)
	}
	return nil
}

// PrintUsage writes the help text.
func PrintUsage(name string, output io.Writer) {
	newFlagSet(name, &Config{}, output).Usage()
}
