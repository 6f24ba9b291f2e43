package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"corsserve/config"
	"corsserve/logger"
	"corsserve/server"
)

// onServing, when set, is called with the bound address once the server
// accepts connections.
var onServing func(addr string)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code: 0 on clean shutdown, 1 on bind or
// serve failure, 2 on invalid configuration.
func run(args []string) int {
	log := logger.GetLogger()

	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Error("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
		return 2
	}
	if cfg.Debug {
		log.EnableDebug()
	}
	log.Debug("Loaded configuration", map[string]interface{}{
		"host":             cfg.Host,
		"port":             cfg.Port,
		"root":             cfg.Root,
		"shutdown_timeout": cfg.GetShutdownTimeout().String(),
	})

	// Cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, log)
	if err := srv.Start(ctx); err != nil {
		log.Error("Failed to start file server", map[string]interface{}{
			"error": err.Error(),
		})
		return 1
	}

	if onServing != nil {
		onServing(srv.Addr())
	}

	serveErr := <-srv.Done()
	if err := srv.Shutdown(); err != nil {
		log.Error("Shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 1
	}
	if serveErr != nil {
		return 1
	}

	log.Info("Shutdown complete", nil)
	return 0
}
