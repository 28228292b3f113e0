package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	intrnl "roomchat/internal"
	"roomchat/internal/app"
)

func main() {
	cfg, err := app.LoadServerConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	addr := flag.String("addr", cfg.Addr, "server listen address")
	driver := flag.String("store", cfg.StoreDriver, "message store: sqlite, postgres, redis, badger or memory")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(intrnl.BuildVersion())
		return
	}
	cfg.Addr = *addr
	cfg.StoreDriver = *driver

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	logger = logger.Level(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("start server")
	}

	if err := handle.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server shut down cleanly")
}
