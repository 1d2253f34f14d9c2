package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/herald/api/internal/app"
	"github.com/herald/api/internal/auth"
	"github.com/herald/api/internal/config"
	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/logging"
	"github.com/herald/api/internal/seed"
	"github.com/herald/api/internal/subscription"
	"github.com/herald/api/internal/upgrade"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "seed":
			runSeed(os.Args[2:])
			return
		case "import-legacy":
			runImportLegacy(os.Args[2:])
			return
		case "hash-token":
			runHashToken(os.Args[2:])
			return
		}
	}

	cfg, _ := loadConfig(os.Args[1:], nil)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create application
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("error creating application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("received shutdown signal")
		cancel()

		// Give server time to shutdown gracefully
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}()

	// Start application
	if err := application.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// loadConfig parses args (supports --config, --database.path, etc.), loads
// the configuration and sets up logging. extra registers subcommand flags.
func loadConfig(args []string, extra func(*pflag.FlagSet)) (*config.Config, *pflag.FlagSet) {
	flags := config.SetupFlags()
	if extra != nil {
		extra(flags)
	}
	if err := flags.Parse(args); err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)
	return cfg, flags
}

func runSeed(args []string) {
	cfg, _ := loadConfig(args, nil)

	// Open database and run migrations (no full app startup)
	db, err := app.OpenDatabase(cfg)
	if err != nil {
		slog.Error("error opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := seed.Run(context.Background(), db.DB); err != nil {
		slog.Error("error seeding database", "error", err)
		os.Exit(1)
	}
}

func runImportLegacy(args []string) {
	cfg, flags := loadConfig(args, func(fs *pflag.FlagSet) {
		fs.String("file", "", "YAML or JSON export of legacy subscription attributes")
	})

	path, _ := flags.GetString("file")
	if path == "" {
		slog.Error("--file is required")
		os.Exit(1)
	}

	db, err := app.OpenDatabase(cfg)
	if err != nil {
		slog.Error("error opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	importer := upgrade.NewImporter(content.NewRepository(db.DB), subscription.NewRepository(db.DB))
	report, err := importer.ImportFile(context.Background(), path)
	if err != nil {
		slog.Error("error importing legacy subscriptions", "file", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

// runHashToken prints a bcrypt hash to use as admin.token. The token is read
// from the first argument or, without one, from the first line of stdin.
func runHashToken(args []string) {
	flags := pflag.NewFlagSet("hash-token", pflag.ContinueOnError)
	cost := flags.Int("cost", auth.DefaultTokenCost, "bcrypt cost")
	if err := flags.Parse(args); err != nil {
		slog.Error("error parsing flags", "error", err)
		os.Exit(1)
	}

	token := flags.Arg(0)
	if token == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			slog.Error("error reading token from stdin", "error", err)
			os.Exit(1)
		}
		token = strings.TrimRight(line, "\r\n")
	}
	if token == "" {
		slog.Error("token is empty")
		os.Exit(1)
	}

	hash, err := auth.HashToken(token, *cost)
	if err != nil {
		slog.Error("error hashing token", "error", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
