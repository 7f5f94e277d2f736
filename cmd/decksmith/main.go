package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/conorfennell/decksmith/internal/ai"
	"github.com/conorfennell/decksmith/internal/auth"
	"github.com/conorfennell/decksmith/internal/config"
	"github.com/conorfennell/decksmith/internal/fetch"
	"github.com/conorfennell/decksmith/internal/leitner"
	"github.com/conorfennell/decksmith/internal/proposal"
	"github.com/conorfennell/decksmith/internal/storage"
	"github.com/conorfennell/decksmith/internal/web"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	if cfg.AIAPIKey == "" {
		slog.Warn("no AI API key configured; card generation will fail until DECKSMITH_AI_API_KEY is set")
	}

	proposer := ai.NewClient(cfg.AIAPIKey, cfg.AIModel)
	manager := proposal.NewManager(db, proposer)
	scheduler := leitner.New(db)
	server := web.NewServer(auth.NewSessions(), fetch.New(), manager, scheduler, cfg.DevPassword, cfg.ReposDir)

	slog.Info("serving", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
