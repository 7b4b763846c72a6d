// kbadmin is the operator tool for knowledge base storage: provision a
// knowledge base, inspect its size, wipe its contents, or drop it
// entirely.
//
// Usage:
//
//	kbadmin -kb <id> init    # provision the storage unit
//	kbadmin -kb <id> stats   # node/edge counts
//	kbadmin -kb <id> wipe    # delete all nodes and edges
//	kbadmin -kb <id> drop    # destroy the storage unit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"go.uber.org/zap"

	"memexia-backend/application/services"
	"memexia-backend/infrastructure/config"
	"memexia-backend/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "kbadmin:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// .env is optional; real deployments configure the environment.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("kbadmin", flag.ExitOnError)
	kbID := fs.String("kb", "", "knowledge base id (required)")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("MEMEXIA")); err != nil {
		return err
	}

	if *kbID == "" {
		return fmt.Errorf("-kb is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected exactly one action: init, stats, wipe or drop")
	}
	action := fs.Arg(0)

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Environment); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Get()

	provider := services.NewProvider(cfg, log)
	defer provider.Shutdown()

	ctx := context.Background()
	svc, err := provider.GraphService(ctx)
	if err != nil {
		return err
	}

	switch action {
	case "init":
		// A graph read provisions the storage unit as a side effect of
		// session acquisition.
		if _, err := svc.GetGraphData(ctx, *kbID); err != nil {
			return err
		}
		fmt.Printf("knowledge base %s provisioned\n", *kbID)

	case "stats":
		data, err := svc.GetGraphData(ctx, *kbID)
		if err != nil {
			return err
		}
		fmt.Printf("knowledge base %s: %d nodes, %d edges\n",
			*kbID, len(data.Nodes), len(data.Edges))

	case "wipe":
		count, err := svc.DeleteAllNodes(ctx, *kbID)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d nodes from knowledge base %s\n", count, *kbID)

	case "drop":
		existed, err := svc.DeleteKnowledgeBase(ctx, *kbID)
		if err != nil {
			return err
		}
		if !existed {
			fmt.Printf("knowledge base %s had no storage unit\n", *kbID)
			return nil
		}
		log.Info("dropped knowledge base", zap.String("kb_id", *kbID))
		fmt.Printf("dropped knowledge base %s\n", *kbID)

	default:
		return fmt.Errorf("unknown action %q", action)
	}

	return nil
}
