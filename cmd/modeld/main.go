package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/modeld/internal/api"
	"github.com/seantiz/modeld/internal/config"
	"github.com/seantiz/modeld/internal/engine"
	"github.com/seantiz/modeld/internal/plugin"
	"github.com/seantiz/modeld/internal/registry"
	"github.com/seantiz/modeld/internal/render"
	"github.com/seantiz/modeld/internal/store"
	"github.com/seantiz/modeld/internal/task"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("modeld: exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("modeld: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"model_directory", cfg.ModelDirectory,
		"model_scan_interval", cfg.ModelScanInterval.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return fmt.Errorf("create work root: %w", err)
	}
	reg := registry.NewRegistry(
		registry.WithLogger(logger),
		registry.WithWorkRoot(cfg.WorkRoot),
	)

	scanner, err := plugin.NewScanner(
		plugin.NewLoader(cfg.ModelDirectory, logger),
		reg,
		cfg.ModelScanInterval,
		plugin.WithWatch(cfg.WatchModels),
		plugin.WithScannerLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create model scanner: %w", err)
	}

	renderOpts := []render.Option{render.WithLogger(logger)}
	if cfg.LatexTemplate != "" {
		renderOpts = append(renderOpts, render.WithTemplateFile(cfg.LatexTemplate))
	}
	latex, err := render.NewLatex(cfg.PdflatexPath, renderOpts...)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	lc, err := task.NewLifecycle(latex,
		task.WithLogger(logger),
		task.WithMessages(task.Messages{
			ResultsSubject: cfg.ResultsEmailSubject,
			ResultsBody:    cfg.ResultsEmailBody,
			FailureSubject: cfg.FailureEmailSubject,
			FailureBody:    cfg.FailureEmailBody,
		}),
	)
	if err != nil {
		return fmt.Errorf("create task lifecycle: %w", err)
	}

	eng := engine.NewEngine(db, reg, lc, logger, engine.WithSender(engine.LogSender{Logger: logger}))
	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger, api.WithScanner(scanner))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Models are available before the first request is served.
	rep := scanner.ScanOnce(ctx)
	logger.Info("initial model load",
		"files", rep.Files,
		"added", rep.Added,
		"failures", len(rep.Failures),
		"rejected", len(rep.Rejected),
	)

	g, gctx := errgroup.WithContext(ctx)
	if err := scanner.Start(gctx); err != nil {
		return fmt.Errorf("start model scanner: %w", err)
	}
	g.Go(func() error {
		return srv.Run(gctx)
	})

	err = g.Wait()

	scanner.Stop()
	logger.Info("waiting for in-flight tasks")
	eng.Wait()

	return err
}
