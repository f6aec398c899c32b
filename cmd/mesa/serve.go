package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baiirun/mesa/internal/api"
)

var flagSeedOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if e.cfg.Auth.InsecureSecret() {
			e.log.Warn("SECRET_KEY is the default value; set it before exposing the server")
		}
		if flagSeedOnStart {
			if _, err := e.svc.Seed(ctx); err != nil {
				return err
			}
		}

		srv, err := api.New(e.svc, e.log, e.mtr, api.Options{
			Addr:             e.cfg.Server.Addr,
			CORSOrigins:      e.cfg.Server.Origins(),
			LoginRate:        e.cfg.Auth.LoginRateLimit,
			RateLimitStorage: e.cfg.RateLimit.Storage,
			RedisURL:         e.cfg.RateLimit.RedisURL,
			MetricsPath:      e.cfg.Metrics.Path,
		})
		if err != nil {
			return err
		}

		go e.svc.RunSweeper(ctx, e.cfg.Trash.SweepInterval)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&flagSeedOnStart, "seed", false, "load demo data when the database has no admin")
	rootCmd.AddCommand(serveCmd)
}

// background is the command context, or a fresh one when run outside Execute.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
