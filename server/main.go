package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zacjszewczyk/csd-file-server/server/modules/command_dispatcher"
	"github.com/zacjszewczyk/csd-file-server/server/modules/connection_listener"
	"github.com/zacjszewczyk/csd-file-server/server/modules/connection_manager"
	fsm "github.com/zacjszewczyk/csd-file-server/server/modules/file_system_manager"
	"github.com/zacjszewczyk/csd-file-server/server/modules/logger"
	"github.com/zacjszewczyk/csd-file-server/server/modules/server_config"
	"github.com/zacjszewczyk/csd-file-server/server/modules/transfer_catalog"
	"github.com/zacjszewczyk/csd-file-server/server/services/file_transfer_service"
)

const programName = "server"

func main() {
	if len(os.Args) < 2 {
		server_config.PrintUsage(programName, os.Stdout)
		return
	}

	cfg, err := server_config.Parse(programName, os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v. Please try again.\n", err)
		os.Exit(1)
	}

	log, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil); err != nil {
		log.Error("server stopped", "error", err)
		stop()
		os.Exit(1)
	}
	log.Info("server stopped")
}

// run wires the server together and serves until ctx is cancelled. ready, if
// set, is called with the bound address once the socket is listening.
func run(ctx context.Context, cfg *server_config.Config, log *slog.Logger, ready func(net.Addr)) error {
	if n, err := fsm.RemoveStalePartials(cfg.Dir); err != nil {
		log.Warn("could not sweep partial files", "dir", cfg.Dir, "error", err)
	} else if n > 0 {
		log.Info("removed partial files from a previous run", "dir", cfg.Dir, "count", n)
	}

	catalog, err := openCatalog(ctx, cfg.RedisAddr, log)
	if err != nil {
		return err
	}
	defer catalog.Close()

	transfers := file_transfer_service.New(cfg.Dir, cfg.MaxUploadSize, catalog)
	manager := connection_manager.New(command_dispatcher.New(transfers), cfg.IdleTimeout, log)
	listener := connection_listener.New(cfg.Addr(), manager.HandleClient, cfg.MaxConns, log)

	if err := listener.Listen(ctx); err != nil {
		return err
	}
	log.Info("serving files", "dir", cfg.Dir, "timeout", cfg.IdleTimeout, "max_conns", cfg.MaxConns)
	if ready != nil {
		ready(listener.Addr())
	}
	return listener.Serve(ctx)
}

func openCatalog(ctx context.Context, addr string, log *slog.Logger) (transfer_catalog.Catalog, error) {
	if addr == "" {
		return transfer_catalog.Nop{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	catalog, err := transfer_catalog.NewRedis(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("transfer catalog: %w", err)
	}
	log.Info("recording transfers in redis", "addr", addr)
	return catalog, nil
}
