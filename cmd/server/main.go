package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"time"

	"quotemine/internal/config"
	"quotemine/internal/server"
	"quotemine/internal/util"
	"quotemine/pkg/dedup"
	"quotemine/pkg/publish"
	"quotemine/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	var publisher publish.Publisher
	if cfg.ThreadsUserID != "" && cfg.ThreadsAccessToken != "" {
		publisher, err = publish.NewThreadsPublisher(cfg.ThreadsUserID, cfg.ThreadsAccessToken)
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		Store:     st,
		Publisher: publisher,
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("quote server listening", "addr", addr, "backend", cfg.StoreBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func openStore(cfg config.FileConfig) (store.Store, error) {
	engine := dedup.NewEngine()
	if cfg.StoreBackend == config.BackendPostgres {
		return store.NewGormStore(cfg.DatabaseURL, engine)
	}
	return store.NewJSONStore(cfg.QuotesDir, engine)
}
