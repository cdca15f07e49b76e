package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	storageFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag, storageFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		storageFlag:  storageFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		// A missing .env file is fine.
		_ = godotenv.Load()

		cfg, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if level := flagValue(c.logLevelFlag); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if driver := flagValue(c.storageFlag); driver != "" {
			cfg.Storage.Driver = strings.ToLower(driver)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newApp wires the engine's collaborators. CLI metrics go to a private
// registry since nothing scrapes a one-shot command.
func (c *commandContext) newApp(component string) (*app.App, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.Logging, component)
	return app.New(cfg, logger, app.WithRegisterer(prometheus.NewRegistry()))
}

// withStore opens the project storage at location and closes the app
// when fn returns.
func (c *commandContext) withStore(ctx context.Context, component, location string, fn func(*app.App, storage.Storage) error) error {
	a, err := c.newApp(component)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.OpenStorage(ctx, location)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	return fn(a, store)
}

// withProject is withStore for commands that need an initialised project.
func (c *commandContext) withProject(ctx context.Context, component, location string, fn func(*app.App, storage.Storage, *domain.ReviewProject) error) error {
	return c.withStore(ctx, component, location, func(a *app.App, store storage.Storage) error {
		project, err := store.LoadProject(ctx)
		if err != nil {
			return projectLoadError(location, err)
		}
		return fn(a, store, project)
	})
}

func projectLoadError(location string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		if location == "" {
			return fmt.Errorf("no review project found; create one with `snowball init`")
		}
		return fmt.Errorf("no review project found in %s; create one with `snowball init %s`", location, location)
	}
	return fmt.Errorf("load project: %w", err)
}

func locationArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

func flagValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
