package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/checkline-lab/checkline/internal/aggregate"
	"github.com/checkline-lab/checkline/internal/config"
	"github.com/checkline-lab/checkline/internal/server"
	"github.com/checkline-lab/checkline/internal/source"
	"github.com/checkline-lab/checkline/internal/viewer"
)

func main() {
	configPath := flag.String("config", "checkline.yaml", "Path to configuration file")
	checkID := flag.String("check", "", "Check ID to reconstruct")
	parallel := flag.Bool("parallel", false, "Fetch sources concurrently")
	serve := flag.Bool("serve", false, "Serve the timeline over HTTP instead of writing it out")
	outPath := flag.String("out", "", "Write the rendered HTML to this path (default stdout)")
	flag.Parse()

	// Diagnostics go to stderr; stdout is reserved for the rendered page.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	runParallel := cfg.Run.Parallel || *parallel

	// Adapter order is the authoritative-total precedence: live API first,
	// then the manifest sources in name order.
	client := source.NewAPIClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout())
	adapters := []aggregate.Adapter{
		source.NewAPIAdapter(client, *checkID, cfg.Check.Currency),
	}
	adapters = append(adapters, source.BuildAdapters(cfg.SourceLoading.Specs, cfg.Check.Currency)...)

	slog.Info("Loaded config",
		"sources", len(adapters),
		"manifest_dir", cfg.SourceLoading.ConfigDir,
		"parallel", runParallel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	aggregator := aggregate.New(*checkID, adapters, runParallel)
	tl := aggregator.Run(ctx)

	if tl.IsEmpty() {
		slog.Warn("No events found for check", "check_id", *checkID)
	}

	if *serve || cfg.Server.Enabled {
		srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), cfg.Server.Mode)
		viewer.NewService(tl).RegisterRoutes(srv.Engine)
		if err := srv.Run(ctx); err != nil {
			slog.Error("Viewer server stopped with error", "error", err)
			os.Exit(1)
		}
		return
	}

	page, err := viewer.RenderHTML(tl)
	if err != nil {
		slog.Error("Failed to render timeline", "error", err)
		os.Exit(1)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, page, 0o644); err != nil {
			slog.Error("Failed to write output file", "path", *outPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Timeline written", "path", *outPath, "events", tl.Len())
		return
	}

	if _, err := os.Stdout.Write(page); err != nil {
		slog.Error("Failed to write output", "error", err)
		os.Exit(1)
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
