// Package store keeps quizzes and student performance in a SQL database.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/quiztutor/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported values for the driver argument of Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Store struct {
	db       *sql.DB
	postgres bool
}

// New opens a SQLite database at dbPath. ":memory:" gives a private
// in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to the database and creates missing tables.
func Open(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if dsn == ":memory:" {
			db, err = sql.Open("sqlite", dsn)
			if err == nil {
				// Every connection to :memory: is a separate database.
				db.SetMaxOpenConns(1)
			}
		} else {
			db, err = sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, postgres: driver == DriverPostgres}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			subject TEXT NOT NULL,
			week TEXT NOT NULL,
			finalized_at TIMESTAMP NOT NULL,
			PRIMARY KEY (subject, week)
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_questions (
			subject TEXT NOT NULL,
			week TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			question TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			rubric TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (subject, week, question_id)
		)`,
		`CREATE TABLE IF NOT EXISTS performance (
			student_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			week TEXT NOT NULL,
			current_question_index INTEGER NOT NULL DEFAULT 0,
			started BOOLEAN NOT NULL DEFAULT FALSE,
			last_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (student_id, subject, week)
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			student_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			week TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			attempt_number INTEGER NOT NULL,
			answer_text TEXT NOT NULL,
			feedback_text TEXT NOT NULL DEFAULT '',
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_exploration BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (student_id, subject, week, question_id, attempt_number)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PutQuiz finalizes a quiz, replacing any previous version for the same
// subject and week. Question IDs are normalized first.
func (s *Store) PutQuiz(ctx context.Context, quiz model.Quiz) error {
	if strings.TrimSpace(quiz.Subject) == "" || strings.TrimSpace(quiz.Week) == "" {
		return fmt.Errorf("%w: subject and week are required", model.ErrInvalidQuiz)
	}
	questions, err := model.NormalizeQuestions(quiz.Questions)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM quiz_questions WHERE subject = ? AND week = ?`),
		quiz.Subject, quiz.Week,
	); err != nil {
		return fmt.Errorf("delete questions: %w", err)
	}
	for _, q := range questions {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO quiz_questions (subject, week, question_id, question, context, rubric)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			quiz.Subject, quiz.Week, q.ID, q.Question, q.Context, q.Rubric,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO quizzes (subject, week, finalized_at) VALUES (?, ?, ?)
		 ON CONFLICT (subject, week) DO UPDATE SET finalized_at = excluded.finalized_at`),
		quiz.Subject, quiz.Week, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}
	return tx.Commit()
}

// GetQuiz returns the finalized questions of a quiz in order. The slice is
// empty when the quiz has not been finalized.
func (s *Store) GetQuiz(ctx context.Context, subject, week string) ([]model.QuizQuestion, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT question_id, question, context, rubric FROM quiz_questions
		 WHERE subject = ? AND week = ? ORDER BY question_id`),
		subject, week,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	questions := []model.QuizQuestion{}
	for rows.Next() {
		var q model.QuizQuestion
		if err := rows.Scan(&q.ID, &q.Question, &q.Context, &q.Rubric); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListQuizzes returns all finalized quizzes.
func (s *Store) ListQuizzes(ctx context.Context) ([]model.QuizSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.subject, q.week, q.finalized_at,
			(SELECT COUNT(*) FROM quiz_questions qq WHERE qq.subject = q.subject AND qq.week = q.week)
		 FROM quizzes q
		 ORDER BY q.subject, q.week`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quizzes []model.QuizSummary
	for rows.Next() {
		var q model.QuizSummary
		if err := rows.Scan(&q.Subject, &q.Week, &q.FinalizedAt, &q.QuestionCount); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// GetPerformance loads the record for key with its full attempt history.
// Returns nil and nil error if the student has no record yet.
func (s *Store) GetPerformance(ctx context.Context, key model.SessionKey) (*model.PerformanceState, error) {
	p := model.NewPerformanceState()
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT current_question_index, started, last_score, updated_at FROM performance
		 WHERE student_id = ? AND subject = ? AND week = ?`),
		key.StudentID, key.Subject, key.Week,
	).Scan(&p.CurrentQuestionIndex, &p.Started, &p.LastScore, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT question_id, attempt_number, answer_text, feedback_text, score, is_exploration, created_at
		 FROM attempts WHERE student_id = ? AND subject = ? AND week = ?
		 ORDER BY question_id, attempt_number`),
		key.StudentID, key.Subject, key.Week,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qid int
			a   model.AttemptRecord
		)
		if err := rows.Scan(&qid, &a.AttemptNumber, &a.AnswerText, &a.FeedbackText,
			&a.Score, &a.IsExploration, &a.CreatedAt); err != nil {
			return nil, err
		}
		p.Answers[qid] = append(p.Answers[qid], a)
	}
	return p, rows.Err()
}

// PutPerformance writes the record for key in one transaction. Attempts
// already stored are left untouched, so history is append-only.
func (s *Store) PutPerformance(ctx context.Context, key model.SessionKey, state *model.PerformanceState) error {
	if err := key.Validate(); err != nil {
		return err
	}
	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO performance (student_id, subject, week, current_question_index, started, last_score, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, subject, week) DO UPDATE SET
			current_question_index = excluded.current_question_index,
			started = excluded.started,
			last_score = excluded.last_score,
			updated_at = excluded.updated_at`),
		key.StudentID, key.Subject, key.Week,
		state.CurrentQuestionIndex, state.Started, state.LastScore, updated.UTC(),
	); err != nil {
		return fmt.Errorf("upsert performance: %w", err)
	}

	for qid, attempts := range state.Answers {
		for _, a := range attempts {
			if _, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO attempts (student_id, subject, week, question_id, attempt_number,
					answer_text, feedback_text, score, is_exploration, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (student_id, subject, week, question_id, attempt_number) DO NOTHING`),
				key.StudentID, key.Subject, key.Week, qid, a.AttemptNumber,
				a.AnswerText, a.FeedbackText, a.Score, a.IsExploration, a.CreatedAt.UTC(),
			); err != nil {
				return fmt.Errorf("insert attempt %d/%d: %w", qid, a.AttemptNumber, err)
			}
		}
	}
	return tx.Commit()
}

// ListSessionKeys returns the keys of all performance records, optionally
// limited to one subject and week. Empty strings mean no filtering.
func (s *Store) ListSessionKeys(ctx context.Context, subject, week string) ([]model.SessionKey, error) {
	query := `SELECT student_id, subject, week FROM performance WHERE 1=1`
	var args []any
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if week != "" {
		query += ` AND week = ?`
		args = append(args, week)
	}
	query += ` ORDER BY subject, week, student_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []model.SessionKey
	for rows.Next() {
		var k model.SessionKey
		if err := rows.Scan(&k.StudentID, &k.Subject, &k.Week); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
