package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/internal/observability"
	"github.com/xkilldash9x/codequal-cli/internal/scheduler"
	"github.com/xkilldash9x/codequal-cli/internal/server"
	"github.com/xkilldash9x/codequal-cli/internal/service"
)

// newServeCmd creates the `serve` command, which runs the HTTP API and the
// scheduled staleness sweep until interrupted.
func newServeCmd() *cobra.Command {
	var addr string
	var noSweep bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the comparison API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerCfg.Addr = addr
			}

			// 1. Tracing
			telemetry, err := observability.SetupTracing(ctx, cfg.Telemetry(), Version)
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during tracer shutdown.", zap.Error(err))
				}
			}()

			// 2. Per-environment components. The default environment is built
			// eagerly so configuration errors surface at startup.
			factory := newFactory(service.FactoryOptions{Version: Version, TracerProvider: telemetry.TracerProvider()})
			registry := service.NewRegistry(factory, service.WithEnvironment(cfg), logger)
			defer registry.Clear()

			defaults, err := registry.Get(ctx, cfg.Environment())
			if err != nil {
				return err
			}

			// 3. Staleness sweep
			if !noSweep {
				sched, err := scheduler.New(cfg.Scheduler().Schedule, defaults.Sweeper, logger)
				if err != nil {
					return err
				}
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			// 4. HTTP
			router := server.NewRouter(registry, logger, server.Options{
				DefaultEnvironment: cfg.Environment(),
				APIKey:             cfg.Server().APIKey,
				ServiceName:        cfg.Telemetry().ServiceName,
				TracerProvider:     telemetry.TracerProvider(),
			})
			return server.Serve(ctx, cfg.Server(), router, logger)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address. (Overrides config/env)")
	serveCmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not run the scheduled staleness sweep")
	return serveCmd
}
