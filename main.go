// Command service-tube-go applies or reverts the database schema.
//
//	go run . [up|down|status]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

func main() {
	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	lg, err := utilities.Init(cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if cfg.Store.Driver != config.DriverPostgres {
		sugar.Fatalf("migrations need STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.Store.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	switch cmd {
	case "up":
		err = database.Migrate(ctx, db.DB)
	case "down":
		err = database.Rollback(ctx, db.DB)
	case "status":
		err = database.Status(ctx, db.DB)
	default:
		sugar.Fatalf("unknown command %q (want up, down or status)", cmd)
	}
	if err != nil {
		sugar.Fatalf("migrate %s: %v", cmd, err)
	}
	sugar.Infow("migration finished", "command", cmd)
}
