package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/quiztutor/internal/handler"
	"github.com/pavelanni/quiztutor/internal/kvstore"
	"github.com/pavelanni/quiztutor/internal/llm"
	"github.com/pavelanni/quiztutor/internal/llm/prompts"
	"github.com/pavelanni/quiztutor/internal/session"
	"github.com/pavelanni/quiztutor/internal/store"
)

// deps are the long-lived clients a command works with.
type deps struct {
	db      *store.Store
	machine *session.Machine
	checks  []handler.Check
	closers []func() error
}

// Close releases every client in reverse order of creation.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("close dependency", "error", err)
		}
	}
}

// buildDeps opens the stores and, when withGrader is set, the LLM grader,
// and assembles the session machine over them. Without a grader the
// machine can only reset and report progress.
func buildDeps(ctx context.Context, v *viper.Viper, withGrader bool) (*deps, error) {
	d := &deps{}

	db, err := store.Open(v.GetString("db-driver"), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.db = db
	d.closers = append(d.closers, db.Close)
	d.checks = append(d.checks, handler.Check{Name: "database", Ping: db.Ping})

	var perf session.PerformanceStore = db
	switch backend := v.GetString("perf-backend"); backend {
	case "sql", "":
	case "redis":
		rs, err := kvstore.Dial(ctx, kvstore.Config{
			Addr:     v.GetString("redis-addr"),
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
			TTL:      v.GetDuration("redis-ttl"),
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		perf = rs
		d.closers = append(d.closers, rs.Close)
		d.checks = append(d.checks, handler.Check{Name: "redis", Ping: rs.Ping})
		slog.Info("performance records in redis", "addr", v.GetString("redis-addr"))
	default:
		d.Close()
		return nil, fmt.Errorf("unknown performance backend %q", backend)
	}

	var (
		grader session.Grader
		opts   []session.Option
	)
	if withGrader {
		g, err := newGrader(ctx, v)
		if err != nil {
			d.Close()
			return nil, err
		}
		grader = g
		opts = append(opts, session.WithThresholds(session.Thresholds{
			AutoAdvance: v.GetFloat64("auto-advance"),
			Gate:        v.GetFloat64("gate"),
		}))
	}

	d.machine = session.New(grader, perf, db, opts...)
	return d, nil
}

func newGrader(ctx context.Context, v *viper.Viper) (*llm.Grader, error) {
	if dir := v.GetString("prompts-dir"); dir != "" {
		if err := prompts.LoadFS(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
		slog.Info("loaded prompt templates", "dir", dir)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}

	retry := llm.DefaultRetry()
	retry.MaxAttempts = v.GetInt("llm-retries")
	cfg := llm.Config{
		Provider: strings.ToLower(v.GetString("llm-provider")),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		BaseURL:  v.GetString("llm-url"),
		Retry:    retry,
	}
	if cfg.Provider != "openai" {
		cfg.BaseURL = ""
	}

	provider, err := llm.NewProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}

	if cfg.Provider == "openai" && v.GetBool("llm-ping") {
		p, err := llm.NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.ModelOrDefault())
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			var auth *llm.ErrAuth
			if errors.As(err, &auth) {
				return nil, fmt.Errorf("LLM health check: %w", err)
			}
			slog.Warn("LLM endpoint not reachable yet", "url", cfg.BaseURL, "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", cfg.BaseURL, "model", cfg.ModelOrDefault())
		}
	}

	gcfg := llm.DefaultGraderConfig()
	gcfg.Variant = prompts.PromptVariant(variant)
	gcfg.Timeout = v.GetDuration("llm-timeout")
	return llm.NewGrader(provider, gcfg)
}
