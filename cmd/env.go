package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/forumkita/marketpulse/internal/analyzer"
	"github.com/forumkita/marketpulse/internal/classifier"
	"github.com/forumkita/marketpulse/internal/scanner"
	"github.com/forumkita/marketpulse/internal/stats"
	"github.com/forumkita/marketpulse/internal/store"
	"github.com/forumkita/marketpulse/internal/trade"
	"github.com/forumkita/marketpulse/pkg/aiassist"
	"github.com/forumkita/marketpulse/pkg/forum"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "marketpulse.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initForum() forum.Client {
	return forum.NewClient(cfg.Forum.BaseURL, cfg.Forum.Token,
		forum.WithRateLimit(cfg.Forum.RatePerSecond, cfg.Forum.RateBurst),
	)
}

// initAI returns nil when no key is configured: the pipeline then runs
// rule-based only, without narratives.
func initAI() aiassist.Client {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	return aiassist.NewClient(cfg.Anthropic.Key,
		aiassist.WithClassifyModel(cfg.Anthropic.HaikuModel),
		aiassist.WithNarrativeModel(cfg.Anthropic.SonnetModel),
	)
}

func initAnalyzer(st store.Store) (*analyzer.Analyzer, error) {
	var rules *classifier.Classifier
	var err error
	if cfg.Classifier.PatternsPath != "" {
		rules, err = classifier.NewFromFile(cfg.Classifier.PatternsPath)
	} else {
		rules, err = classifier.New()
	}
	if err != nil {
		return nil, eris.Wrap(err, "load classifier patterns")
	}

	ai := initAI()
	fallback := ai
	if !cfg.Classifier.AIFallbackEnabled {
		fallback = nil
	}

	fc := initForum()
	sc := scanner.New(fc,
		scanner.WithIncrementalCap(cfg.Scanner.IncrementalPostCap),
	)
	builder := trade.NewBuilder(rules, fallback, nil,
		trade.WithMinConfidence(cfg.Classifier.MinConfidence),
	)

	opts := analyzer.Options{
		MaxThreadsPerRun: cfg.Analyzer.MaxThreadsPerRun,
		LeaseTTL:         time.Duration(cfg.Analyzer.LeaseTTLSecs) * time.Second,
		RescanInterval:   time.Duration(cfg.Analyzer.RescanIntervalSec) * time.Second,
		WindowDays:       cfg.Analyzer.WindowDays,
		MinValidTrades:   cfg.Analyzer.MinValidTrades,
		Refresh: stats.RefreshConfig{
			ItemThreshold:    cfg.Refresh.ItemThreshold,
			AccountThreshold: cfg.Refresh.AccountThreshold,
		},
	}

	return analyzer.New(fc, sc, builder, st, ai, opts), nil
}

// runTimeout wraps ctx with the configured run deadline, if any.
func runTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg.Analyzer.RunTimeoutSecs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(cfg.Analyzer.RunTimeoutSecs)*time.Second)
}
