package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"physiofit/backend/internal/config"
	"physiofit/backend/internal/service/records"
	"physiofit/backend/internal/service/rules"
	"physiofit/backend/internal/service/scheduling"
	"physiofit/backend/internal/store/postgres"
	transport "physiofit/backend/internal/transport/http"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "physiofit-server",
		Short: "Physiotherapy scheduling API server",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
				MaxOpenConns:    cfg.DBMaxOpenConns,
				MaxIdleConns:    cfg.DBMaxIdleConns,
				ConnMaxLifetime: cfg.DBConnMaxLifetime,
				ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			})
			if err != nil {
				return err
			}
			defer postgres.Close(db)
			return postgres.Migrate(cmd.Context(), db)
		},
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		logger.Error().Err(err).Msg("connect to database")
		return err
	}
	defer postgres.Close(db)
	logger.Info().Msg("connected to database")

	schedRepo := postgres.NewSchedulingRepo(db)
	recordRepo := postgres.NewRecordRepo(db)

	scheduler := scheduling.NewService(schedRepo, recordRepo)
	ruleEngine := rules.NewService(schedRepo, recordRepo)
	registry := records.NewService(recordRepo, schedRepo)

	e := transport.NewServer(logger, scheduler, ruleEngine, registry)
	e.Server.ReadHeaderTimeout = cfg.RequestTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server failed")
		return err
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
