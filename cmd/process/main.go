package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"quotemine/internal/config"
	"quotemine/internal/util"
	"quotemine/pkg/dedup"
	"quotemine/pkg/extract"
	"quotemine/pkg/pdfreader"
	"quotemine/pkg/pipeline"
	"quotemine/pkg/progress"
	"quotemine/pkg/storage"
	"quotemine/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	file := flag.String("file", "", "book file to process (pdf or plain text)")
	title := flag.String("title", "", "book title (defaults to file name)")
	author := flag.String("author", "", "book author")
	topic := flag.String("topic", "", "book topic")
	heuristic := flag.Bool("heuristic", false, "force the offline heuristic extractor")
	archive := flag.Bool("archive", false, "upload the source file to object storage after processing")
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: process -file <book.pdf> [-title ...] [-author ...]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	extractor, err := pickExtractor(cfg, *heuristic)
	if err != nil {
		log.Fatalf("failed to init extractor: %v", err)
	}

	var tracker pipeline.ProgressTracker
	if cfg.RedisAddr != "" {
		redisTracker, err := progress.NewRedisTracker(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisTracker.Close()
		tracker = redisTracker
	}

	pages, err := pdfreader.ReadPages(*file)
	if err != nil {
		log.Fatalf("failed to read book: %v", err)
	}

	bookTitle := *title
	if bookTitle == "" {
		base := filepath.Base(*file)
		bookTitle = strings.TrimSuffix(base, filepath.Ext(base))
	}

	processor := pipeline.NewProcessor(st, extractor, tracker, slog.Default())
	report, err := processor.ProcessBook(ctx, pipeline.BookInput{
		Title:      bookTitle,
		Author:     *author,
		Topic:      *topic,
		SourceFile: filepath.Base(*file),
	}, pages)
	if err != nil {
		log.Fatalf("processing failed: %v", err)
	}

	if *archive && cfg.MinioEndpoint != "" {
		arch, err := storage.NewMinioArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init archive: %v", err)
		}
		key, err := arch.ArchiveFile(ctx, *file)
		if err != nil {
			log.Fatalf("failed to archive source: %v", err)
		}
		slog.Info("source archived", "key", key)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

func pickExtractor(cfg config.FileConfig, forceHeuristic bool) (extract.Extractor, error) {
	if forceHeuristic || cfg.GeminiAPIKey == "" {
		slog.Info("using heuristic extractor")
		return extract.NewHeuristicExtractor(), nil
	}
	return extract.NewGeminiExtractor(cfg.GeminiAPIKey, cfg.GeminiModel)
}

func openStore(cfg config.FileConfig) (store.Store, error) {
	engine := dedup.NewEngine()
	if cfg.StoreBackend == config.BackendPostgres {
		return store.NewGormStore(cfg.DatabaseURL, engine)
	}
	return store.NewJSONStore(cfg.QuotesDir, engine)
}
