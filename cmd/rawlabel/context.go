package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"rawlabel/internal/annotation"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/config"
	"rawlabel/internal/logging"
	"rawlabel/internal/preview"
	"rawlabel/internal/rawdecode"
)

type commandContext struct {
	configFlag *string
	userFlag   *string
	jsonFlag   *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	logger      *slog.Logger
	annotations *annotation.Store
	assets      assetstore.Backend
}

func newCommandContext(configFlag, userFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		userFlag:   userFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// user resolves the acting principal for mutating commands.
func (c *commandContext) user() (string, error) {
	candidates := []string{os.Getenv("RAWLABEL_USER"), os.Getenv("USER")}
	if c.userFlag != nil {
		candidates = append([]string{*c.userFlag}, candidates...)
	}
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", errors.New("no acting user: pass --user or set RAWLABEL_USER")
}

// commandLogger logs warnings to stderr and everything to the state log, so
// command output on stdout stays clean.
func (c *commandContext) commandLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		FilePath:    cfg.LogPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) annotationStore(ctx context.Context) (*annotation.Store, error) {
	if c.annotations != nil {
		return c.annotations, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.commandLogger()
	if err != nil {
		return nil, err
	}
	store, err := annotation.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open annotation store: %w", err)
	}
	c.annotations = store
	return store, nil
}

func (c *commandContext) assetStore(ctx context.Context) (assetstore.Backend, error) {
	if c.assets != nil {
		return c.assets, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := assetstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}
	c.assets = store
	return store, nil
}

func (c *commandContext) previewCache(ctx context.Context) (*preview.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.commandLogger()
	if err != nil {
		return nil, err
	}
	store, err := c.assetStore(ctx)
	if err != nil {
		return nil, err
	}
	return newPreviewCache(cfg, store, logger)
}

func newPreviewCache(cfg *config.Config, store assetstore.Store, logger *slog.Logger) (*preview.Cache, error) {
	decoder, err := rawdecode.New(cfg.ExiftoolBinary(), cfg.DecodeTimeout())
	if err != nil {
		return nil, fmt.Errorf("init decoder: %w", err)
	}
	return preview.NewFromConfig(cfg, store, decoder, logger), nil
}

// close releases stores opened by the command.
func (c *commandContext) close() error {
	var errs []error
	if c.annotations != nil {
		errs = append(errs, c.annotations.Close())
		c.annotations = nil
	}
	if c.assets != nil {
		errs = append(errs, c.assets.Close())
		c.assets = nil
	}
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// sourceArg resolves a RAW path argument to its canonical source id.
func sourceArg(raw string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return preview.SourceID(expanded)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
