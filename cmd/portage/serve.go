package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/portage/internal/model"
	"github.com/user/portage/internal/orchestrator"
	"github.com/user/portage/internal/probe"
	"github.com/user/portage/internal/scan"
	"github.com/user/portage/internal/storage"
	"github.com/user/portage/internal/transfer"
	"github.com/user/portage/internal/web"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portage API server",
	Long: `Serve runs the job orchestrator and exposes the HTTP API:
synchronous probe and plan endpoints, background scan and transfer
jobs with per-job SSE progress streams, and the job history.

Examples:
  portage serve
  portage serve --port 9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "API server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := servePort
	if port == 0 {
		port = cfg.APIPort
	}

	history, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer history.Close()

	orch := orchestrator.New(logger,
		orchestrator.WithScanner(scan.New(logger)),
		orchestrator.WithExecutor(model.MethodStreaming, transfer.NewStreaming(logger)),
		orchestrator.WithHistory(history),
		orchestrator.WithRetention(cfg.JobRetention),
		orchestrator.WithCleanupInterval(cfg.CleanupInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go orch.Run(ctx)

	fmt.Printf("Starting API server on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	prober := probe.New(logger, probe.WithTimeouts(cfg.ProbeDialTimeout, cfg.ProbeLoginTimeout))
	srv := web.NewServer(port, logger, orch, prober, history)
	return srv.Start(ctx)
}
