package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pavelanni/quiztutor/internal/llm/prompts"
	"github.com/pavelanni/quiztutor/internal/metrics"
	"github.com/pavelanni/quiztutor/internal/model"
	"github.com/pavelanni/quiztutor/internal/tracing"
)

// GraderConfig tunes how the Grader talks to its provider.
type GraderConfig struct {
	Variant     prompts.PromptVariant
	Timeout     time.Duration // per Grade call, retries included; zero means none
	Temperature float64
	MaxTokens   int
}

// DefaultGraderConfig returns the settings used unless overridden.
func DefaultGraderConfig() GraderConfig {
	return GraderConfig{
		Variant:     prompts.PromptStandard,
		Timeout:     30 * time.Second,
		Temperature: 0.3,
		MaxTokens:   1024,
	}
}

// Grader turns a provider into the rubric grading oracle.
type Grader struct {
	provider Provider
	cfg      GraderConfig
}

// NewGrader creates a Grader over p.
func NewGrader(p Provider, cfg GraderConfig) (*Grader, error) {
	if !prompts.IsValidVariant(string(cfg.Variant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.Variant)
	}
	return &Grader{provider: p, cfg: cfg}, nil
}

// Grade asks the model to judge the student's text against the question's
// rubric. Any failure is reported as ErrOracleUnavailable.
func (g *Grader) Grade(ctx context.Context, req model.GradeRequest) (model.Grade, error) {
	ctx, span := tracing.Start(ctx, "llm.Grade",
		attribute.Int("question.id", req.Question.ID),
		attribute.Bool("exploration", req.Exploration),
		attribute.String("model", g.provider.ModelID()),
	)
	defer span.End()

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	system, user, err := prompts.BuildGradePrompt(g.cfg.Variant, req)
	if err != nil {
		tracing.RecordError(span, err)
		return model.Grade{}, fmt.Errorf("build grade prompt: %w", err)
	}

	start := time.Now()
	resp, err := g.provider.Generate(ctx, Request{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Content: user}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	metrics.OracleDuration.WithLabelValues(g.provider.ModelID()).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = &ErrInvalidResponse{Err: errors.New("empty completion")}
	}
	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues("error").Inc()
		tracing.RecordError(span, err)
		return model.Grade{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	metrics.OracleRequestsTotal.WithLabelValues("ok").Inc()

	score, feedback := ParseScore(resp.Text, req.PriorScore)
	span.SetAttributes(attribute.Float64("score", score))
	slog.Debug("graded turn", "question", req.Question.ID, "exploration", req.Exploration,
		"score", score, "stop_reason", resp.StopReason)
	return model.Grade{Score: score, Feedback: feedback}, nil
}
