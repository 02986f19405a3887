package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pario-ai/lens/pkg/analyzer"
	"github.com/pario-ai/lens/pkg/audit"
	"github.com/pario-ai/lens/pkg/cache"
	"github.com/pario-ai/lens/pkg/config"
	"github.com/pario-ai/lens/pkg/kv"
	"github.com/pario-ai/lens/pkg/kv/badgerkv"
	"github.com/pario-ai/lens/pkg/kv/sqlite"
	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/lro"
	"github.com/pario-ai/lens/pkg/models"
	"github.com/pario-ai/lens/pkg/orchestrator"
	"github.com/pario-ai/lens/pkg/router"
)

var configPath string

// app holds the wired components for one command invocation.
type app struct {
	cfg   *config.Config
	store kv.Store
	cache *cache.Store
	orch  *orchestrator.Orchestrator
	audit *audit.Logger
}

// errAnalyzerDisabled is returned when no analyzer API key is configured.
var errAnalyzerDisabled = errors.New("analyzer API key is not configured")

func loadApp() (*app, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log)

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	c := cache.New(store, cfg.Cache.TTL)

	var a analyzer.Analyzer
	if cfg.Analyzer.APIKey == "" {
		a = analyzer.Func(func(context.Context, analyzer.Input) (models.AnalysisResult, error) {
			return models.AnalysisResult{}, errAnalyzerDisabled
		})
	} else {
		oa, err := analyzer.NewOpenAI(cfg.Analyzer.BaseURL, cfg.Analyzer.APIKey, cfg.Analyzer.Model, cfg.Analyzer.Timeout)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init analyzer: %w", err)
		}
		a = analyzer.NewBreaker(oa, cfg.Analyzer.Breaker.FailureThreshold, cfg.Analyzer.Breaker.OpenTimeout)
	}

	// A nil Operations value disables clip synthesis.
	var ops orchestrator.Operations
	if cfg.Video.APIKey != "" {
		ops = lro.New(cfg.Video.BaseURL, cfg.Video.APIKey,
			lro.WithPollInterval(cfg.Video.PollInterval),
			lro.WithMaxAttempts(cfg.Video.MaxAttempts),
		)
	}

	orch := orchestrator.New(c, a, ops,
		orchestrator.WithRetention(cfg.Cache.Retention),
		orchestrator.WithVideoModel(cfg.Video.Model),
	)
	built := &app{cfg: cfg, store: store, cache: c, orch: orch}
	if cfg.Audit.Enabled {
		built.audit, err = audit.New(cfg.Audit)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init audit: %w", err)
		}
	}
	return built, nil
}

func openStore(sc config.StoreConfig) (kv.Store, error) {
	switch sc.Backend {
	case "memory":
		return kv.NewMemory(), nil
	case "badger":
		return badgerkv.Open(sc.Path)
	default:
		return sqlite.New(sc.Path)
	}
}

func (a *app) router() *router.Router {
	if a.audit == nil {
		return router.New(a.orch)
	}
	return router.New(a.orch, router.WithJournal(a.audit))
}

// Close waits for background purges and releases the stores.
func (a *app) Close() error {
	a.orch.WaitIdle()
	if a.audit != nil {
		_ = a.audit.Close()
	}
	return a.store.Close()
}
