package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/config"
	"github.com/deusflow/newsdigest/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("newsdigest failed")
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the environment and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if cfg != nil {
		logger.Init(cfg.Debug, cfg.LogFormat)
	}
	return cfg, err
}
