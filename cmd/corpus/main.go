// Command corpus imports a document artifact (YAML or JSON) into the
// PostgreSQL table the server reads when corpus.source is "postgres".
//
// Usage:
//
//	go run ./cmd/corpus [-config configs/development.yaml] [-file data/corpus.yaml] [-table documents]
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

	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/topic"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/logger"
	"github.com/chameleon-ai/chameleon/pkg/postgres"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "artifact to import (default: corpus.path from config)")
	table := flag.String("table", "", "target table (default: corpus.table from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *file == "" {
		*file = cfg.Corpus.Path
	}
	if *table == "" {
		*table = cfg.Corpus.Table
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *file, *table); err != nil {
		slog.Error("corpus import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, file, table string) error {
	store, err := corpus.LoadFile(file)
	if err != nil {
		return err
	}
	reg, err := topic.NewRegistry(cfg.Topics)
	if err != nil {
		return err
	}
	if err := store.Validate(reg.Len()); err != nil {
		return fmt.Errorf("validating %s: %w", file, err)
	}

	db, err := postgres.Connect(ctx, cfg.Postgres, 5)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := corpus.Import(ctx, db, table, store.All()); err != nil {
		return err
	}

	counts := store.CountByTopic(reg.Len())
	for i, name := range reg.Names() {
		slog.Info("topic imported", "topic", name, "documents", counts[i])
	}
	slog.Info("corpus imported", "file", file, "table", table, "documents", store.Len())
	return nil
}
