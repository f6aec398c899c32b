package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/config"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/logging"
	"github.com/baiirun/mesa/internal/metrics"
	"github.com/baiirun/mesa/internal/service"
)

var (
	flagDB       string
	flagEnvFiles []string
	flagServer   string
)

var rootCmd = &cobra.Command{
	Use:           "mesa",
	Short:         "Internal request tracker",
	Long:          `Mesa tracks internal work requests from intake through review to completion, with a REST API and a terminal board.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: MESA_DB_PATH or ~/.mesa/mesa.db)")
	rootCmd.PersistentFlags().StringSliceVar(&flagEnvFiles, "env-file", config.DefaultEnvFiles, "env files to load when present")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server URL for remote commands (default: MESA_URL)")
}

// env bundles what the local commands need.
type env struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *db.DB
	svc   *service.Service
	mtr   *metrics.Metrics
}

func (e *env) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagEnvFiles)
}

func dbPath(cfg *config.Config) (string, error) {
	if flagDB != "" {
		return flagDB, nil
	}
	if cfg.Server.DBPath != "" {
		return cfg.Server.DBPath, nil
	}
	return db.DefaultPath()
}

// openEnv loads config, opens and migrates the store and wires the service.
func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, nil)

	path, err := dbPath(cfg)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		_ = store.Close()
		return nil, err
	}

	issuer, err := auth.NewIssuer(auth.TokenOptions{
		Secret: []byte(cfg.Auth.SecretKey),
		Alg:    cfg.Auth.Algorithm,
		TTL:    cfg.Auth.TokenTTL(),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	svc := service.New(store, issuer, log, m, service.Options{
		TrashTTL:      cfg.Trash.TTL(),
		LockThreshold: cfg.Auth.LockThreshold,
		LockWindow:    cfg.Auth.LockWindow(),
		MaxPageSize:   cfg.Server.MaxPageSize,
	})
	return &env{cfg: cfg, log: log, store: store, svc: svc, mtr: m}, nil
}

// newClient builds an API client using the saved token.
func newClient(cfg *config.Config) (*client.Client, error) {
	base := cfg.Client.BaseURL
	if flagServer != "" {
		base = flagServer
	}
	path := cfg.Client.TokenPath
	if path == "" {
		var err error
		if path, err = client.DefaultTokenPath(); err != nil {
			return nil, err
		}
	}
	return client.New(base, client.NewFileStore(path))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "Not logged in or session expired. Run 'mesa login'.")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
