// Package server parses registry server flags and starts the runtime.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	httpapi "github.com/registrolabs/corenic/internal/api/http"
	"github.com/registrolabs/corenic/internal/platform/config"
	platformotel "github.com/registrolabs/corenic/internal/platform/otel"
	"github.com/registrolabs/corenic/internal/registry/dispatch"
	"github.com/registrolabs/corenic/internal/registry/flows"
	"github.com/registrolabs/corenic/internal/registry/storage/sqlite"
	"github.com/registrolabs/corenic/internal/registry/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Config holds registry server configuration.
type Config struct {
	Addr           string        `env:"CORENIC_ADDR" envDefault:":8700"`
	DBPath         string        `env:"CORENIC_DB_PATH" envDefault:"corenic.sqlite"`
	TransferWindow time.Duration `env:"CORENIC_TRANSFER_WINDOW" envDefault:"120h"`
	// TransferFeeCents is the flat transfer fee in minor currency units.
	TransferFeeCents int64 `env:"CORENIC_TRANSFER_FEE_CENTS" envDefault:"1100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The SQLite database path")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the registry server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := platformotel.Setup(ctx, "corenic")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	logger := log.Default()
	dispatcher := &dispatch.Dispatcher{
		Engine: &flows.Engine{Store: store, Logger: logger},
		Flows: &flows.Flows{
			Logger:           logger,
			TransferWindow:   cfg.TransferWindow,
			TransferFeeCents: cfg.TransferFeeCents,
		},
		Telemetry: telemetry.NewEmitter(store),
		Metrics:   dispatch.NewMetrics(registry),
		Logger:    logger,
	}

	api := httpapi.New(dispatcher, registry, logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
