package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/infra/db"
	"github.com/bryanwahyu/medcoder/internal/logging"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "medcoder",
		Short:        "De-identify clinical documents and extract ICD-10, CPT and HCPCS codes",
		SilenceUsage: true,
	}
	// path config.yaml
	def := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	root.PersistentFlags().StringVar(&configPath, "config", def, "path to config.yaml")

	root.AddCommand(serveCmd(&configPath), processCmd(&configPath), migrateCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	return cfg, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			log := logging.New(cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			go a.limiter.Janitor(ctx, 5*time.Minute, 10*time.Minute)

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      a.Handler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("db", a.store.Driver).Msg("server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown error")
			}
			return nil
		},
	}
}

func processCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Run the pipeline on one local file and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			log := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())

			a, err := build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.pipeline.ProcessICDCodes(cmd.Context(), args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("processing failed at %s", res.Stage)
			}
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables for the configured database driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log)
			store, err := db.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info().Str("db", store.Driver).Msg("migrations applied")
			return nil
		},
	}
}
