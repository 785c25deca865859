package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"rawlabel/internal/annotation"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/daemon"
	"rawlabel/internal/logging"
	"rawlabel/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), ctx, skipChecks)
		},
	}
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Start even when preflight checks fail")
	return cmd
}

func runServer(cmdCtx context.Context, ctx *commandContext, skipChecks bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, failed := range preflight.Failed(preflight.RunAll(cmdCtx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run `rawlabel check` for details"),
			logging.String(logging.FieldImpact, "affected operations will fail until fixed"),
		)
		if !skipChecks {
			return fmt.Errorf("preflight check %q failed: %s", failed.Name, failed.Detail)
		}
	}

	store, err := annotation.Open(cmdCtx, cfg, logger)
	if err != nil {
		logger.Error("open annotation store", logging.Error(err))
		return err
	}
	defer store.Close()

	assets, err := assetstore.Open(cmdCtx, cfg)
	if err != nil {
		logger.Error("open asset store", logging.Error(err))
		return err
	}
	defer assets.Close()

	previews, err := newPreviewCache(cfg, assets, logger)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, store, previews, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer d.Close()

	if err := d.Start(cmdCtx); err != nil {
		return err
	}
	<-cmdCtx.Done()
	logger.Info("rawlabel server shutting down")
	return nil
}
