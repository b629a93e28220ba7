// Command dashwatch shows the live worker dashboard of a mediadash server in
// the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mediadash/backend/internal/config"
	"github.com/mediadash/backend/internal/infrastructure/logger"
	"github.com/mediadash/backend/internal/livestatus"
	"github.com/mediadash/backend/internal/view/terminal"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	origin := flag.String("origin", "", "server origin, e.g. http://localhost:8888")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *origin != "" {
		cfg.Client.Origin = *origin
	}

	// The board owns stdout; keep logs on stderr.
	cfg.Logger.OutputPaths = []string{"stderr"}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	board := terminal.NewBoard()
	client, err := livestatus.New(livestatus.Config{
		Origin:         cfg.Client.Origin,
		ReconnectDelay: cfg.Client.ReconnectDelay,
		Renderer:       board,
		Logger:         log.Named("livestatus"),
	})
	if err != nil {
		log.Fatalf("invalid client configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("dashwatch_start", "url", client.URL())
	go func() {
		if err := board.Run(ctx, os.Stdout, cfg.Client.RefreshInterval); err != nil {
			log.Errorw("dashwatch_render_failed", "error", err)
			stop()
		}
	}()

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("dashwatch_client_failed", "error", err)
		os.Exit(1)
	}
	log.Info("dashwatch stopped")
}
