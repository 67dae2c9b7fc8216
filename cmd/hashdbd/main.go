package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gostonefire/hashdb"
	"github.com/gostonefire/hashdb/internal/config"
	"github.com/gostonefire/hashdb/internal/server"
	"go.uber.org/dig"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "hashdbd:", err)
		os.Exit(1)
	}
}

// run - Wires configuration, database and server and serves until SIGINT or SIGTERM
func run(args []string) error {
	container := dig.New()
	constructors := []interface{}{
		func() ([]string, error) { return args, nil },
		config.Load,
		newLogger,
		openDB,
		server.New,
	}
	for _, c := range constructors {
		if err := container.Provide(c); err != nil {
			return err
		}
	}

	return container.Invoke(serve)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// openDB - Opens the configured file, creating it with the configured tuning if missing
func openDB(cfg config.Config, logger *slog.Logger) (*hashdb.DB, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	db := hashdb.New(hashdb.WithLogger(logger))
	if err = db.Tune(cfg.Buckets, int8(cfg.AlignPow), int8(cfg.FreeBlockPow), opts); err != nil {
		return nil, err
	}
	if err = db.SetCacheCapacity(cfg.CacheSize); err != nil {
		return nil, err
	}
	if err = db.Open(cfg.Path, cfg.Mode()); err != nil {
		return nil, err
	}

	return db, nil
}

func serve(s *server.Server, db *hashdb.DB, logger *slog.Logger) (err error) {
	defer func() {
		if cErr := db.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()

	select {
	case err = <-errCh:
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = s.Shutdown(shutdownCtx); err != nil {
		return
	}

	return <-errCh
}
