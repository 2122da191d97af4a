package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"golang.org/x/sync/errgroup"

	"roulette/internal/config"
	"roulette/internal/handlers"
	platformotel "roulette/internal/platform/otel"
	"roulette/internal/services"
	"roulette/internal/session"
	"roulette/internal/storage"
	"roulette/internal/storage/memory"
	"roulette/internal/storage/postgres"
	"roulette/internal/storage/sqlite"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(realMain(os.Args[1:]))
}

// realMain runs the server and returns the process exit code. Deferred
// cleanup runs before main exits.
func realMain(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// 1. Initialize logging
	logOut := io.Discard
	verbose := true
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
		verbose = cfg.LogVerbose
	}
	defer logger.Init("roulette", verbose, false, logOut).Close()

	if err := run(cfg); err != nil {
		logger.Errorf("Server stopped: %v", err)
		return 1
	}
	return 0
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := platformotel.Setup(ctx, "roulette", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warningf("Tracing shutdown: %v", err)
		}
	}()

	// 3. Storage and services
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rouletteService := services.NewRouletteService(store)
	liveSessions := services.NewLiveSessions(rouletteService, cfg.LiveIdleTimeout,
		session.WithDebounce(cfg.AutoSaveDebounce),
		session.WithSaveTimeout(cfg.SaveTimeout),
	)

	// 4. HTTP
	r := gin.Default()
	handlers.NewHTTPHandler(rouletteService, liveSessions).RegisterRoutes(r)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Server starting on %s (storage: %s)", cfg.HTTPAddr, cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 5. Background janitor for idle live sessions
	g.Go(func() error {
		ticker := time.NewTicker(cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := liveSessions.CleanUpInactiveSessions(); n > 0 {
					logger.Infof("Performed cleanup of %d inactive live sessions.", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		liveSessions.CloseAll()
		return err
	})

	return g.Wait()
}

func openStore(cfg config.Config) (storage.RouletteStore, error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.DriverPostgres:
		return postgres.Open(cfg.PostgresDSN)
	case config.DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
