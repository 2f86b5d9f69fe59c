// testserver starts a modeld API server with an in-memory store, a stub
// renderer and a watched plugin directory, for manual E2E testing.
// Usage: go run ./cmd/testserver [model directory]
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/modeld/internal/api"
	"github.com/seantiz/modeld/internal/engine"
	"github.com/seantiz/modeld/internal/plugin"
	"github.com/seantiz/modeld/internal/registry"
	"github.com/seantiz/modeld/internal/render"
	"github.com/seantiz/modeld/internal/store"
	"github.com/seantiz/modeld/internal/task"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("MODELD_LISTEN_ADDR"); v != "" {
		addr = v
	}
	dir := "examples/models"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	workRoot, err := os.MkdirTemp("", "modeld-testserver-")
	if err != nil {
		log.Fatalf("failed to create work root: %v", err)
	}
	defer os.RemoveAll(workRoot)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := registry.NewRegistry(registry.WithLogger(logger), registry.WithWorkRoot(workRoot))

	scanner, err := plugin.NewScanner(plugin.NewLoader(dir, logger), reg, 5*time.Second,
		plugin.WithWatch(true),
		plugin.WithScannerLogger(logger),
	)
	if err != nil {
		log.Fatalf("failed to create scanner: %v", err)
	}

	lc, err := task.NewLifecycle(render.Stub{}, task.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to create lifecycle: %v", err)
	}
	eng := engine.NewEngine(db, reg, lc, logger, engine.WithSender(engine.LogSender{Logger: logger}))
	srv := api.NewServer(addr, db, reg, eng, logger, api.WithScanner(scanner))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner.ScanOnce(ctx)
	if err := scanner.Start(ctx); err != nil {
		log.Fatalf("failed to start scanner: %v", err)
	}
	defer scanner.Stop()

	logger.Info("testserver: starting", "addr", addr, "model_directory", dir)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
	}
	eng.Wait()
}
