// Command chat is a terminal chat client. By default it loads the workflow
// in-process; with -addr it talks to a running server's RPC endpoint.
//
// Usage:
//
//	go run ./cmd/chat [-config configs/development.yaml] [-addr localhost:9000]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/chameleon-ai/chameleon/internal/bootstrap"
	"github.com/chameleon-ai/chameleon/internal/digest"
	"github.com/chameleon-ai/chameleon/internal/tui"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/logger"
	"github.com/chameleon-ai/chameleon/pkg/rpc"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	addr := flag.String("addr", "", "RPC address of a running server; empty runs in-process")
	timeout := flag.Duration("timeout", 15*time.Second, "per-query timeout")
	flag.Parse()

	// Log lines would corrupt the terminal UI.
	slog.SetDefault(logger.New(io.Discard, "error", "text"))

	d, status, closeFn, err := connect(*configPath, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	if _, err := tea.NewProgram(tui.New(d, status, *timeout), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func connect(configPath, addr string) (tui.Digester, string, func(), error) {
	if addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := rpc.Dial(ctx, addr)
		if err != nil {
			return nil, "", nil, err
		}
		remote := digest.NewRemote(client)
		topics, err := remote.Topics(ctx)
		if err != nil {
			client.Close()
			return nil, "", nil, err
		}
		status := fmt.Sprintf("connected to %s, topics: %v, ctrl+c to quit", addr, topics)
		return remote, status, func() { client.Close() }, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("loading config: %w", err)
	}
	rt, err := bootstrap.Setup(context.Background(), cfg, nil)
	if err != nil {
		return nil, "", nil, err
	}
	status := fmt.Sprintf("in-process, %d documents, topics: %v, ctrl+c to quit", rt.Store.Len(), rt.Registry.Names())
	return digest.NewService(rt.Workflow, digest.WithMaxQueryBytes(cfg.Server.MaxQueryBytes)), status, func() { rt.Close() }, nil
}
