// Command dailymatchd serves the daily memory-match puzzle API: the
// deterministic puzzle of the day, live game sessions, per-topic
// progress, and the announcements record store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	_ "modernc.org/sqlite"

	"github.com/clt-platform/daily-match/internal/announcements"
	"github.com/clt-platform/daily-match/internal/api"
	"github.com/clt-platform/daily-match/internal/progress"
)

type config struct {
	Addr   string `env:"DAILY_MATCH_ADDR" envDefault:":8080"`
	DBPath string `env:"DAILY_MATCH_DB" envDefault:"daily-match.db"`
}

func main() {
	logger := log.New(os.Stdout, "[DAILYMATCHD] ", log.LstdFlags)
	if err := run(logger); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger) error {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Both stores share one SQLite file. If it cannot be opened the
	// service still comes up: progress falls back to memory-only and
	// the announcements endpoints report unavailable.
	var (
		progressStore progress.Store
		annStore      *announcements.Store
	)
	db, err := openDatabase(cfg.DBPath)
	if err != nil {
		logger.Printf("database unavailable, running memory-only: %v", err)
		progressStore = progress.NewMemoryStore()
	} else {
		defer db.Close()
		sqlStore, err := progress.NewSQLiteStoreFromDB(db)
		if err != nil {
			return fmt.Errorf("failed to migrate progress store: %w", err)
		}
		progressStore = sqlStore
		annStore, err = announcements.NewStoreFromDB(db)
		if err != nil {
			return fmt.Errorf("failed to migrate announcements store: %w", err)
		}
	}

	apiServer := api.NewServer(progressStore, annStore)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: apiServer.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (db: %s)", cfg.Addr, cfg.DBPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Print("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	apiServer.Shutdown()
	return nil
}

func openDatabase(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return db, nil
}
