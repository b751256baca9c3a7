package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// QuizQuestion is a single finalized quiz question.
type QuizQuestion struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Context  string `json:"context"`
	Rubric   string `json:"rubric"`
}

// Quiz groups the finalized questions for one subject and week.
type Quiz struct {
	Subject   string         `json:"subject"`
	Week      string         `json:"week"`
	Questions []QuizQuestion `json:"questions"`
}

// QuizSummary describes a finalized quiz without its questions.
type QuizSummary struct {
	Subject       string    `json:"subject"`
	Week          string    `json:"week"`
	QuestionCount int       `json:"question_count"`
	FinalizedAt   time.Time `json:"finalized_at"`
}

// AttemptRecord is one graded interaction with a question.
type AttemptRecord struct {
	AttemptNumber int       `json:"attempt_number"`
	AnswerText    string    `json:"answer_text"`
	FeedbackText  string    `json:"feedback_text"`
	Score         float64   `json:"score"`
	IsExploration bool      `json:"is_exploration"`
	CreatedAt     time.Time `json:"created_at"`
}

// PerformanceState is the progression record of one student on one quiz.
type PerformanceState struct {
	Answers              map[int][]AttemptRecord `json:"answers"`
	CurrentQuestionIndex int                     `json:"current_question_index"`
	Started              bool                    `json:"started"`
	LastScore            float64                 `json:"last_score"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// NewPerformanceState returns the default state of a student who has not
// interacted with a quiz yet.
func NewPerformanceState() *PerformanceState {
	return &PerformanceState{Answers: make(map[int][]AttemptRecord)}
}

// AppendAttempt numbers rec as the next attempt on questionID and appends it.
// Existing attempts are never modified.
func (p *PerformanceState) AppendAttempt(questionID int, rec AttemptRecord) AttemptRecord {
	if p.Answers == nil {
		p.Answers = make(map[int][]AttemptRecord)
	}
	rec.AttemptNumber = len(p.Answers[questionID]) + 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	p.Answers[questionID] = append(p.Answers[questionID], rec)
	return rec
}

// Attempts returns the attempt history for a question.
func (p *PerformanceState) Attempts(questionID int) []AttemptRecord {
	return p.Answers[questionID]
}

// Reset rewinds progress to the first question. Attempt history is kept.
func (p *PerformanceState) Reset() {
	p.CurrentQuestionIndex = 0
	p.LastScore = 0
	p.Started = false
}

// Clone returns a deep copy of the state.
func (p *PerformanceState) Clone() *PerformanceState {
	c := *p
	c.Answers = make(map[int][]AttemptRecord, len(p.Answers))
	for id, attempts := range p.Answers {
		c.Answers[id] = append([]AttemptRecord(nil), attempts...)
	}
	return &c
}

// SessionKey identifies a performance record. Components are kept separate so
// identifiers containing separator characters can never collide.
type SessionKey struct {
	StudentID string `json:"student_id"`
	Subject   string `json:"subject"`
	Week      string `json:"week"`
}

// ErrInvalidKey is returned when a SessionKey has an empty component.
var ErrInvalidKey = errors.New("invalid session key")

// Validate checks that every component is present.
func (k SessionKey) Validate() error {
	switch {
	case strings.TrimSpace(k.StudentID) == "":
		return fmt.Errorf("%w: student_id is required", ErrInvalidKey)
	case strings.TrimSpace(k.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidKey)
	case strings.TrimSpace(k.Week) == "":
		return fmt.Errorf("%w: week is required", ErrInvalidKey)
	}
	return nil
}

// String renders the key for logs. It is not used for storage.
func (k SessionKey) String() string {
	return k.StudentID + "_" + k.Subject + "_" + k.Week
}

// ClampScore limits a score to [0, 1]. NaN counts as 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// GradeRequest is what the grading oracle needs to judge a student turn.
type GradeRequest struct {
	Question    QuizQuestion
	StudentText string
	Exploration bool
	// PriorScore is reported back when the oracle declines to score an
	// exploratory turn.
	PriorScore float64
}

// Grade is the oracle's judgment of a student turn.
type Grade struct {
	Score    float64
	Feedback string
}

// ErrInvalidQuiz is returned when a question list cannot be finalized.
var ErrInvalidQuiz = errors.New("invalid quiz")

// NormalizeQuestions assigns sequential IDs to questions that have none and
// checks that the resulting IDs run 1..n in order with non-empty text.
func NormalizeQuestions(questions []QuizQuestion) ([]QuizQuestion, error) {
	out := make([]QuizQuestion, len(questions))
	for i, q := range questions {
		if q.ID == 0 {
			q.ID = i + 1
		}
		if q.ID != i+1 {
			return nil, fmt.Errorf("%w: question %d has id %d, want %d", ErrInvalidQuiz, i+1, q.ID, i+1)
		}
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("%w: question %d has no text", ErrInvalidQuiz, q.ID)
		}
		out[i] = q
	}
	return out, nil
}

// TutorConfig holds runtime parameters set via CLI flags.
type TutorConfig struct {
	AutoAdvance   float64 // score at or above which an answer advances on its own
	Gate          float64 // minimum last score for "next" to advance
	PromptVariant string  // grading prompt variant (strict, standard, lenient)
	BasePath      string  // URL prefix for sub-path deployments
	Lang          string  // tutor language (en, ru)
}
