// Package session drives a student through a quiz one turn at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/metrics"
	"github.com/pavelanni/quiztutor/internal/model"
	"github.com/pavelanni/quiztutor/internal/present"
	"github.com/pavelanni/quiztutor/internal/tracing"
)

// Grader judges a student turn against a question's rubric.
type Grader interface {
	Grade(ctx context.Context, req model.GradeRequest) (model.Grade, error)
}

// PerformanceStore persists one performance record per session key.
// GetPerformance returns nil, nil when no record exists.
type PerformanceStore interface {
	GetPerformance(ctx context.Context, key model.SessionKey) (*model.PerformanceState, error)
	PutPerformance(ctx context.Context, key model.SessionKey, state *model.PerformanceState) error
}

// Catalog returns the finalized questions of a quiz, or an empty slice when
// none has been finalized.
type Catalog interface {
	GetQuiz(ctx context.Context, subject, week string) ([]model.QuizQuestion, error)
}

// Signal tells the caller whether the conversation should continue.
type Signal int

const (
	SignalNone Signal = iota
	SignalEndSession
)

func (s Signal) String() string {
	if s == SignalEndSession {
		return "end_session"
	}
	return "none"
}

// MarshalText renders the signal as its label in JSON.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reply is the outcome of one turn.
type Reply struct {
	Text           string
	Signal         Signal
	Kind           TurnKind
	QuestionIndex  int
	TotalQuestions int
}

// Thresholds are the score cut-offs that drive progression.
type Thresholds struct {
	AutoAdvance float64 // an answer scoring at least this moves on by itself
	Gate        float64 // "next" is refused while the last score is below this
}

// DefaultThresholds returns the standard cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoAdvance: 0.8, Gate: 0.5}
}

// Option configures a Machine.
type Option func(*Machine)

// WithThresholds overrides the progression cut-offs.
func WithThresholds(t Thresholds) Option {
	return func(m *Machine) { m.thresholds = t }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine is the quiz session state machine. It holds no per-session state;
// everything lives in the performance store.
type Machine struct {
	grader     Grader
	store      PerformanceStore
	catalog    Catalog
	thresholds Thresholds
	now        func() time.Time
}

// New creates a Machine over the given collaborators.
func New(grader Grader, store PerformanceStore, catalog Catalog, opts ...Option) *Machine {
	m := &Machine{
		grader:     grader,
		store:      store,
		catalog:    catalog,
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Thresholds returns the cut-offs in effect.
func (m *Machine) Thresholds() Thresholds {
	return m.thresholds
}

// turn carries what one HandleInput call works on.
type turn struct {
	key       model.SessionKey
	raw       string
	questions []model.QuizQuestion
	state     *model.PerformanceState
}

func (t *turn) current() model.QuizQuestion {
	return t.questions[t.state.CurrentQuestionIndex]
}

// HandleInput processes one student utterance and returns the tutor's reply.
// Grading failures degrade to a zero score; store and catalog failures are
// returned wrapped in ErrStoreUnavailable and ErrCatalogUnavailable.
func (m *Machine) HandleInput(ctx context.Context, key model.SessionKey, raw string) (Reply, error) {
	if err := key.Validate(); err != nil {
		return Reply{}, err
	}
	kind := Classify(raw)

	ctx, span := tracing.Start(ctx, "session.HandleInput",
		attribute.String("session.key", key.String()),
		attribute.String("turn.kind", kind.String()),
	)
	defer span.End()

	questions, err := m.catalog.GetQuiz(ctx, key.Subject, key.Week)
	if err != nil {
		err = fmt.Errorf("load quiz %s/%s: %w: %w", key.Subject, key.Week, ErrCatalogUnavailable, err)
		tracing.RecordError(span, err)
		return Reply{}, err
	}
	state, err := m.load(ctx, key)
	if err != nil {
		tracing.RecordError(span, err)
		return Reply{}, err
	}

	t := &turn{key: key, raw: raw, questions: questions, state: state}
	text, signal, err := m.transition(ctx, t, kind)
	if err != nil {
		tracing.RecordError(span, err)
		return Reply{}, err
	}

	reply := Reply{
		Text:           text,
		Signal:         signal,
		Kind:           kind,
		QuestionIndex:  t.state.CurrentQuestionIndex,
		TotalQuestions: len(questions),
	}
	span.SetAttributes(
		attribute.String("turn.signal", signal.String()),
		attribute.Int("quiz.index", reply.QuestionIndex),
	)
	metrics.TurnsTotal.WithLabelValues(kind.String(), signal.String()).Inc()
	slog.Debug("turn handled", "session", key.String(), "kind", kind.String(),
		"signal", signal.String(), "index", reply.QuestionIndex, "total", reply.TotalQuestions)
	return reply, nil
}

// transition applies the first matching rule for the turn.
func (m *Machine) transition(ctx context.Context, t *turn, kind TurnKind) (string, Signal, error) {
	state := t.state

	if kind == KindTermination {
		state.Started = false
		if err := m.save(ctx, t.key, state); err != nil {
			return "", SignalNone, err
		}
		return i18n.T(ctx, "Goodbye"), SignalEndSession, nil
	}

	if len(t.questions) == 0 {
		return i18n.Td(ctx, "NoQuizAvailable", map[string]any{
			"Subject": t.key.Subject,
			"Week":    t.key.Week,
		}), SignalNone, nil
	}

	if !state.Started {
		state.Started = true
		if err := m.save(ctx, t.key, state); err != nil {
			return "", SignalNone, err
		}
		intro := joinParagraphs(
			i18n.Td(ctx, "Welcome", map[string]any{"Subject": t.key.Subject, "Week": t.key.Week}),
			i18n.Tp(ctx, "QuizLength", len(t.questions)),
		)
		if state.CurrentQuestionIndex >= len(t.questions) {
			return joinParagraphs(intro, i18n.T(ctx, "QuizCompleted")), SignalNone, nil
		}
		return joinParagraphs(intro, present.Question(ctx, t.current())), SignalNone, nil
	}

	if state.CurrentQuestionIndex >= len(t.questions) {
		return i18n.T(ctx, "QuizCompleted"), SignalNone, nil
	}

	switch kind {
	case KindNavigation:
		return m.navigate(ctx, t)
	case KindExploration:
		return m.explore(ctx, t)
	case KindAnswer:
		return m.answer(ctx, t)
	default:
		return i18n.T(ctx, "PromptForAnswer"), SignalNone, nil
	}
}

func (m *Machine) navigate(ctx context.Context, t *turn) (string, Signal, error) {
	if t.state.LastScore < m.thresholds.Gate {
		metrics.GateRejectionsTotal.Inc()
		return i18n.Td(ctx, "GateNotMet", map[string]any{
			"Threshold": percent(m.thresholds.Gate),
		}), SignalNone, nil
	}
	return m.advance(ctx, t, "navigation", "")
}

func (m *Machine) explore(ctx context.Context, t *turn) (string, Signal, error) {
	q := t.current()
	grade := m.grade(ctx, t, true)
	t.state.AppendAttempt(q.ID, model.AttemptRecord{
		AnswerText:    t.raw,
		FeedbackText:  grade.Feedback,
		Score:         grade.Score,
		IsExploration: true,
		CreatedAt:     m.now().UTC(),
	})
	if err := m.save(ctx, t.key, t.state); err != nil {
		return "", SignalNone, err
	}
	return joinParagraphs(grade.Feedback, i18n.T(ctx, "ExplorationReminder")), SignalNone, nil
}

func (m *Machine) answer(ctx context.Context, t *turn) (string, Signal, error) {
	q := t.current()
	grade := m.grade(ctx, t, false)
	t.state.AppendAttempt(q.ID, model.AttemptRecord{
		AnswerText:   t.raw,
		FeedbackText: grade.Feedback,
		Score:        grade.Score,
		CreatedAt:    m.now().UTC(),
	})
	t.state.LastScore = grade.Score

	if grade.Score >= m.thresholds.AutoAdvance {
		prefix := joinParagraphs(encouragement(ctx, grade.Score), grade.Feedback)
		return m.advance(ctx, t, "answer", prefix)
	}

	if err := m.save(ctx, t.key, t.state); err != nil {
		return "", SignalNone, err
	}
	return joinParagraphs(
		i18n.T(ctx, "KeepGoing"),
		grade.Feedback,
		i18n.T(ctx, "RetryHint"),
	), SignalNone, nil
}

// advance moves past the current question, persists, and presents whatever
// comes next. LastScore is left as is; only Reset clears it.
func (m *Machine) advance(ctx context.Context, t *turn, trigger, prefix string) (string, Signal, error) {
	t.state.CurrentQuestionIndex++
	if err := m.save(ctx, t.key, t.state); err != nil {
		return "", SignalNone, err
	}
	metrics.QuestionAdvancesTotal.WithLabelValues(trigger).Inc()

	if t.state.CurrentQuestionIndex >= len(t.questions) {
		slog.Info("quiz completed", "session", t.key.String(), "questions", len(t.questions))
		return joinParagraphs(prefix, i18n.T(ctx, "QuizFinished")), SignalEndSession, nil
	}
	return joinParagraphs(
		prefix,
		i18n.T(ctx, "NextQuestionIntro"),
		present.Question(ctx, t.current()),
	), SignalNone, nil
}

// grade asks the oracle about the current question. Failures never fail the
// turn: they score zero with a generic apology as feedback.
func (m *Machine) grade(ctx context.Context, t *turn, exploration bool) model.Grade {
	q := t.current()
	g, err := m.grader.Grade(ctx, model.GradeRequest{
		Question:    q,
		StudentText: t.raw,
		Exploration: exploration,
		PriorScore:  t.state.LastScore,
	})
	if err != nil {
		slog.Warn("grading failed", "session", t.key.String(), "question", q.ID,
			"exploration", exploration, "error", err)
		return model.Grade{Score: 0, Feedback: i18n.T(ctx, "GradingUnavailable")}
	}
	g.Score = model.ClampScore(g.Score)
	return g
}

// Resume opens a session for a client that connects without input. A session
// that has not started is activated as on any first turn; one already in
// progress gets its current question presented again. Nothing is graded or
// persisted for a session in progress.
func (m *Machine) Resume(ctx context.Context, key model.SessionKey) (Reply, error) {
	if err := key.Validate(); err != nil {
		return Reply{}, err
	}
	questions, err := m.catalog.GetQuiz(ctx, key.Subject, key.Week)
	if err != nil {
		return Reply{}, fmt.Errorf("load quiz %s/%s: %w: %w", key.Subject, key.Week, ErrCatalogUnavailable, err)
	}
	state, err := m.load(ctx, key)
	if err != nil {
		return Reply{}, err
	}
	if !state.Started || len(questions) == 0 {
		return m.HandleInput(ctx, key, "")
	}

	reply := Reply{
		Kind:           KindUnrecognized,
		QuestionIndex:  state.CurrentQuestionIndex,
		TotalQuestions: len(questions),
	}
	if state.CurrentQuestionIndex >= len(questions) {
		reply.Text = i18n.T(ctx, "QuizCompleted")
		return reply, nil
	}
	reply.Text = joinParagraphs(
		i18n.T(ctx, "WelcomeBack"),
		present.Question(ctx, questions[state.CurrentQuestionIndex]),
	)
	slog.Info("session resumed", "session", key.String(), "index", state.CurrentQuestionIndex)
	return reply, nil
}

// Reset rewinds a session to its first question without touching attempt
// history. Resetting a session that has no record is a no-op.
func (m *Machine) Reset(ctx context.Context, key model.SessionKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	state, err := m.store.GetPerformance(ctx, key)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		return fmt.Errorf("load performance %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	if state == nil {
		return nil
	}
	state.Reset()
	slog.Info("session reset", "session", key.String())
	return m.save(ctx, key, state)
}

// Progress returns the performance record for key, or a fresh default state
// when the student has not started.
func (m *Machine) Progress(ctx context.Context, key model.SessionKey) (*model.PerformanceState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return m.load(ctx, key)
}

func (m *Machine) load(ctx context.Context, key model.SessionKey) (*model.PerformanceState, error) {
	state, err := m.store.GetPerformance(ctx, key)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("load performance %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	if state == nil {
		state = model.NewPerformanceState()
	}
	return state, nil
}

func (m *Machine) save(ctx context.Context, key model.SessionKey, state *model.PerformanceState) error {
	state.UpdatedAt = m.now().UTC()
	if err := m.store.PutPerformance(ctx, key, state); err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("put").Inc()
		return fmt.Errorf("save performance %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	return nil
}

func encouragement(ctx context.Context, score float64) string {
	if score > 0.95 {
		return i18n.T(ctx, "EncourageGreat")
	}
	return i18n.T(ctx, "EncourageWell")
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', -1, 64)
}

// joinParagraphs joins the non-empty parts with blank lines.
func joinParagraphs(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
