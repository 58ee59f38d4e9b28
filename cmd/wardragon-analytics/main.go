package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alphafox02/WarDragonAnalytics/internal/app"
	"github.com/alphafox02/WarDragonAnalytics/internal/config"
	"github.com/alphafox02/WarDragonAnalytics/internal/logger"
)

// Exit codes per the CLI bootstrap contract: 0 success, 1 config error,
// 2 store unreachable at startup, 130 on signalled shutdown.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitStoreUnreachable = 2
	exitSignalled        = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	kitFile := flag.String("config", "", "path to the kit-list YAML file (overrides KIT_FILE)")
	flag.Parse()

	log, err := logger.New(logger.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardragon-analytics: logger init failed: %v\n", err)
		return exitConfigError
	}

	cfg := config.Load()
	if *kitFile != "" {
		cfg.KitFilePath = *kitFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("wardragon-analytics: startup failed")
		if errors.Is(err, app.ErrStoreUnreachable) {
			return exitStoreUnreachable
		}
		return exitConfigError
	}

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("wardragon-analytics: run failed")
		return exitConfigError
	}

	if ctx.Err() != nil {
		return exitSignalled
	}
	return exitOK
}
