package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quotemine/internal/config"
	"quotemine/internal/util"
	"quotemine/pkg/dedup"
	"quotemine/pkg/migrate"
	"quotemine/pkg/store"
)

const usage = `usage: migrate [flags] <command>

commands:
  run          migrate every document file under the quotes directory
  one <file>   migrate a single document file
  stats        print target store statistics
  clear        delete all books and quotes from the target store

flags:
  -config path   config file (default config.yaml)
  -source dir    override the source document directory
  -workers n     concurrent file migrations for run (default 4)
  -yes           skip the confirmation prompt for clear
`

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	source := flag.String("source", "", "source document directory (defaults to quotesDir)")
	workers := flag.Int("workers", 4, "concurrent file migrations")
	yes := flag.Bool("yes", false, "skip confirmation prompts")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := openTarget(cfg)
	if err != nil {
		log.Fatalf("failed to open target store: %v", err)
	}
	defer target.Close()

	sourceDir := *source
	if sourceDir == "" {
		sourceDir = cfg.QuotesDir
	}

	switch flag.Arg(0) {
	case "run":
		if sourceDir == "" {
			log.Fatal("source directory required (set quotesDir or -source)")
		}
		m := migrate.NewMigrator(target, slog.Default())
		m.Workers = *workers
		report, err := m.MigrateAll(ctx, sourceDir)
		if err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		printJSON(report)
	case "one":
		if flag.NArg() < 2 {
			log.Fatal("usage: migrate one <file.json>")
		}
		m := migrate.NewMigrator(target, slog.Default())
		report, err := m.MigrateFile(ctx, flag.Arg(1))
		if err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		printJSON(report)
	case "stats":
		stats, err := target.Stats()
		if err != nil {
			log.Fatalf("failed to read stats: %v", err)
		}
		printJSON(stats)
	case "clear":
		clearable, ok := target.(interface{ Clear() error })
		if !ok {
			log.Fatalf("the %s backend does not support clear", cfg.StoreBackend)
		}
		if !*yes && !confirm("This deletes ALL books and quotes from the target store. Type 'yes' to continue: ") {
			fmt.Println("aborted")
			return
		}
		if err := clearable.Clear(); err != nil {
			log.Fatalf("clear failed: %v", err)
		}
		fmt.Println("store cleared")
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func openTarget(cfg config.FileConfig) (store.Store, error) {
	engine := dedup.NewEngine()
	if cfg.StoreBackend == config.BackendPostgres {
		return store.NewGormStore(cfg.DatabaseURL, engine)
	}
	return store.NewJSONStore(cfg.QuotesDir, engine)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}
