package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/spentsync/internal/config"
	"github.com/rumor-ml/commons.systems/spentsync/internal/logger"
	"github.com/rumor-ml/commons.systems/spentsync/internal/store"
)

const defaultConfigHint = config.DefaultPath + " if present"

// loadConfig reads the -config file. Without the flag, a missing default
// file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}

	cfg, err := config.Load(config.DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// setup loads and validates the config and attaches a logger to ctx
func setup(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = "  - " + e.Error()
		}
		return ctx, nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(msgs, "\n"))
	}

	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		return ctx, nil, err
	}
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	}
	return logger.WithContext(ctx, log), cfg, nil
}

// openStore opens the configured ledger store
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger store %s: %w", cfg.Store.Describe(), err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("type", cfg.Store.Type).Str("location", cfg.Store.Describe()).Msg("opened ledger store")
	return st, nil
}
