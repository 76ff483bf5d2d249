package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lendshelf/app"
	"lendshelf/db"
	"lendshelf/routes"
)

var (
	envFile     string
	autoMigrate bool

	rootCmd = &cobra.Command{
		Use:           "lendshelf",
		Short:         "Peer-to-peer item lending server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE:  runMigrate,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the environment is read")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply schema migrations on startup")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() (app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig(envFile)
	if err != nil {
		return app.Config{}, nil, err
	}
	log := app.NewLogger(cfg.Env)
	slog.SetDefault(log)
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error("shutdown", "err", err)
		}
	}()

	if autoMigrate {
		if err := db.Migrate(a.DB); err != nil {
			return err
		}
	}
	routes.RegisterRoutes(a.Router, a)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Connect(cmd.Context(), db.Options{DSN: cfg.DSN(), Debug: cfg.DBDebug}, log)
	if err != nil {
		return err
	}
	if sqlDB, err := conn.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
