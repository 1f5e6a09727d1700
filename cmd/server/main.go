// Package main starts the single-room chat server and handles termination.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/presence"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/session"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/Tyrowin/roomchat/internal/store/sqlite"
	"github.com/Tyrowin/roomchat/internal/telemetry"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

const serviceName = "roomchat"

func main() {
	cfg, err := server.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	log.SetPrefix("[CHAT] ")

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		log.Fatalf("setup telemetry: %v", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	coord := session.NewCoordinator(session.Config{
		Room:          cfg.Room,
		HistoryLimit:  cfg.HistoryLimit,
		TypingTimeout: cfg.TypingTimeout,
	}, st, presence.NewRegistry(), broadcast.NewHub())

	srv := server.New(cfg, coord)

	log.Printf("Starting chat server for room %q (store: %s)", cfg.Room, cfg.StoreDriver)
	log.Printf("Allowed origins: %v", cfg.AllowedOrigins)
	log.Println("Endpoints:")
	log.Println("  GET /ws            - WebSocket chat")
	log.Println("  GET /api/health    - Health check")
	log.Println("  GET /api/messages  - Recent messages")

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("failed to serve: %v", err)
		}
	}()

	// Operations run concurrently, so everything that depends on the
	// connection drain lives in one operation.
	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"chat-server": func(ctx context.Context) error {
			log.Println("Graceful shutdown initiated...")
			err := srv.Shutdown(ctx)
			coord.Close()
			if cerr := st.Close(); cerr != nil {
				log.Printf("Error closing store: %v", cerr)
			}
			return err
		},
		"tracing": func(ctx context.Context) error {
			return shutdownTracing(ctx)
		},
	})

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func openStore(ctx context.Context, cfg server.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case server.StoreMemory:
		log.Println("Using in-memory message store; history is lost on restart")
		return store.NewMemory(), nil
	case server.StoreSQLite:
		st, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		log.Printf("Using SQLite message store at %s", cfg.DatabasePath)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
