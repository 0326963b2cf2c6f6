package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"textcast/internal/audio"
	"textcast/internal/config"
	"textcast/internal/handlers"
	"textcast/internal/ingest"
	"textcast/internal/library"
	"textcast/internal/logging"
	"textcast/internal/normalize"
	"textcast/internal/store"
	"textcast/internal/tts"
	"textcast/internal/worker"
)

// CommitSHA is set at build time via ldflags.
var CommitSHA = "unknown"

const undoJanitorInterval = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	for _, dir := range []string{cfg.DataDir, cfg.DataDir + "/sources", cfg.DataDir + "/audio"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	// Migrations and crash recovery run to completion before the worker or
	// any request handler touches the store.
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.InTx(func(tx *sqlx.Tx) error { return st.SeedSettings(tx) }); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	resume, err := st.Recover()
	if err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	norm := normalize.New()
	ing := ingest.New(norm, log)
	engine := tts.NewHTTPEngine(cfg.TTSURL, cfg.VoicesDir, log)
	encoder := audio.NewFFmpegEncoder(cfg.FFmpegPath)
	assembler := audio.NewAssembler(encoder, log)

	w := worker.New(st, cfg, engine, log)
	svc := library.New(st, cfg, norm, ing, w, assembler, engine, log)

	w.Start(resume)
	defer w.Stop()

	janitorStop := make(chan struct{})
	go svc.RunUndoJanitor(undoJanitorInterval, janitorStop)
	defer close(janitorStop)

	h := handlers.New(svc, w, cfg.BaseURL, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: h.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("data_dir", cfg.DataDir),
			zap.String("commit", CommitSHA))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
