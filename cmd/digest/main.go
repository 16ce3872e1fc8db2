// Command digest answers one or more queries in-process and prints each
// digest. With no arguments it runs the two sample queries.
//
// Usage:
//
//	go run ./cmd/digest [-config configs/development.yaml] ["query" ...]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chameleon-ai/chameleon/internal/bootstrap"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/logger"
)

var sampleQueries = []string{
	"Did the Lakers win?",
	"What is happening with Bitcoin?",
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Keep stdout for the digests.
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Setup(ctx, cfg, nil)
	if err != nil {
		slog.Error("failed to load runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	queries := flag.Args()
	if len(queries) == 0 {
		queries = sampleQueries
	}

	failed := false
	for _, q := range queries {
		res, err := rt.Workflow.Run(ctx, q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%q: %v\n", q, err)
			failed = true
			continue
		}
		fmt.Printf("Query: %s\nTopic: %s\n%s\n\n", q, res.Topic, res.Response)
	}
	if failed {
		rt.Close()
		os.Exit(1)
	}
}
