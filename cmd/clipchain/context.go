package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/satindergrewal/clipchain/internal/chain"
	"github.com/satindergrewal/clipchain/internal/clip"
	"github.com/satindergrewal/clipchain/internal/config"
	"github.com/satindergrewal/clipchain/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: os.Stderr,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore() (*clip.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return clip.NewStore(cfg.ClipDir, cfg.RequireMetadata, logging.NewComponentLogger(c.logger, "store"))
}

// withIndex opens the store and the chain index, brings the index up to date
// with the catalog and runs fn.
func (c *commandContext) withIndex(ctx context.Context, fn func(*clip.Store, *chain.Index) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	index, err := chain.Open(ctx, c.config.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	if _, err := chain.Sync(ctx, index, store, logging.NewComponentLogger(c.logger, "chain")); err != nil {
		return err
	}
	return fn(store, index)
}
