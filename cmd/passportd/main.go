// Command passportd runs the credential subsystem as a standalone HTTP
// service backed by the in-memory user directory. Deployments embedding
// the subsystem next to a real database construct passport.Server with
// their own directory.Directory implementation instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yunbq/passport"
	"github.com/yunbq/passport/directory/memory"
	"github.com/yunbq/passport/instrumentation"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "passportd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := passport.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	metrics, err := instrumentation.New(instrumentation.Config{
		ServiceName: "passport",
		Enabled:     true,
	})
	if err != nil {
		return err
	}

	srv, err := passport.NewServer(cfg, memory.New(), metrics, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
