package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"gelap-studio/internal/app"
	"gelap-studio/internal/config"
	"gelap-studio/internal/logging"
)

const closeTimeout = 10 * time.Second

type commandContext struct {
	configFlag  *string
	dataDirFlag *string
	verboseFlag *bool

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, dataDirFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		dataDirFlag: dataDirFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := config.Path()
		if v := flagValue(c.configFlag); v != "" {
			path = v
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if v := flagValue(c.dataDirFlag); v != "" {
			cfg.DataDir = v
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp opens the data directory for the duration of fn. Logs go to
// stderr at warn level unless --verbose is set.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(*app.App) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	level := "warn"
	if c.verboseFlag != nil && *c.verboseFlag {
		level = "debug"
	}
	a, err := app.Open(cfg, logging.New(level, cfg.LogFormat, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = errors.Join(err, a.Close(ctx))
	}()
	return fn(a)
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
