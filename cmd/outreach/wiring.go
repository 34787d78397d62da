package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalambet/outreach/internal/composer"
	"github.com/kalambet/outreach/internal/config"
	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/research"
	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/storage"
)

// loadConfig loads configuration and installs the logger every command
// shares.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.Store) {
	if err := store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// loadCatalog returns the configured sequence and a catalog holding it.
// sequence.file wins over the built-in definition.
func loadCatalog(cfg config.Config) (sequence.Catalog, string, error) {
	var (
		def *sequence.Definition
		err error
	)
	if cfg.Sequence.File != "" {
		def, err = sequence.LoadDefinition(cfg.Sequence.File, cfg.Sequence.WaitDays)
	} else {
		def, err = sequence.DefaultDefinition(cfg.Sequence.ID, cfg.Sequence.WaitDays)
	}
	if err != nil {
		return nil, "", err
	}
	return sequence.NewCatalog(def), def.ID, nil
}

func detectEngine(cfg config.Config) (engine.Engine, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Provider:         cfg.LLM.Provider,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	return eng, nil
}

func newResearcher(cfg config.Config, eng engine.Engine) *research.Researcher {
	opts := research.Options{
		FastModel:  cfg.LLM.FastModel,
		DeepModel:  cfg.LLM.DeepModel,
		MaxQueries: cfg.Research.MaxQueries,
		MaxLinks:   cfg.Research.MaxLinks,
		Strategies: research.DefaultStrategies(&http.Client{Timeout: 15 * time.Second}),
		Logger:     slog.Default().With("component", "research"),
	}
	if cfg.Research.RankCandidates > 0 {
		opts.Ranker = research.NewLLMRanker(eng, cfg.LLM.FastModel)
		opts.RankCandidates = cfg.Research.RankCandidates
	}
	return research.New(eng, research.NewSerperClient(cfg.Research.SerperAPIKey, cfg.Research.SerperURL), opts)
}

func senderOf(cfg config.Config) composer.Sender {
	return composer.Sender{Name: cfg.Mail.SenderName, Agency: cfg.Mail.Agency}
}

func newMailer(cfg config.Config) *mail.SMTPSender {
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.Address,
		Password: cfg.Mail.Password,
		FromName: cfg.Mail.SenderName,
	})
}
