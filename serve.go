package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/freekieb7/flint/config"
	"github.com/freekieb7/flint/net/admin"
	"github.com/freekieb7/flint/telemetry"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		shards    int
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo application",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("shards") {
				cfg.Server.Shards = shards
			}
			if flags.Changed("admin-addr") {
				cfg.Admin.Addr = adminAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address to serve HTTP on")
	cmd.Flags().IntVar(&shards, "shards", 0, "number of reactor shards")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "address of the admin server, empty disables it")

	return cmd
}

func serve(ctx context.Context, cfg config.Config) (err error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		err = errors.Join(err, shutdownTelemetry(context.Background()))
	}()

	logger, err := telemetry.NewLogger(os.Stderr, cfg.Log, cfg.Telemetry)
	if err != nil {
		return err
	}

	a := newApp(cfg, logger)
	if err := a.server.Err(); err != nil {
		return err
	}
	logger.Info("demo credentials", "basic_user", firstNonEmpty(os.Getenv("FLINT_BASIC_USER"), "admin"), "api_key", a.key)

	if cfg.Admin.Addr != "" {
		adm := admin.New(cfg.Admin.Addr, a.server, admin.WithLogger(logger))
		if err := adm.Start(); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
			defer cancel()
			err = errors.Join(err, adm.Shutdown(shutdownCtx))
		}()
	}

	return a.server.ListenAndServe(ctx, cfg.Server.Addr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
