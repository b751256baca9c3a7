// Package quizfile reads finalized quizzes from JSON files.
//
// A quiz file looks like:
//
//	{
//	  "subject": "cyber",
//	  "week": "week1",
//	  "questions": [
//	    {"id": 1, "question": "What is a firewall?", "context": "...",
//	     "rubric": [{"criterion": "Filters traffic by rules", "marks": 1}]}
//	  ]
//	}
//
// The rubric is either free text or a list of criteria with marks. Files
// written by the extractor keep it under "answer" instead; either key is
// accepted, but not both.
package quizfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/quiztutor/internal/model"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "schema://quizfile.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

type file struct {
	Subject   string     `json:"subject"`
	Week      string     `json:"week"`
	Questions []question `json:"questions"`
}

type question struct {
	ID       int             `json:"id"`
	Question string          `json:"question"`
	Context  string          `json:"context"`
	Rubric   json.RawMessage `json:"rubric"`
	Answer   json.RawMessage `json:"answer"`
}

func (q question) rubric() json.RawMessage {
	if len(q.Rubric) > 0 {
		return q.Rubric
	}
	return q.Answer
}

// Criterion is one line of a structured rubric.
type Criterion struct {
	Criterion string  `json:"criterion"`
	Marks     float64 `json:"marks"`
}

// Parse validates data against the quiz file schema and converts it to a
// Quiz. Validation failures wrap model.ErrInvalidQuiz.
func Parse(data []byte) (model.Quiz, error) {
	sch, err := schema()
	if err != nil {
		return model.Quiz{}, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return model.Quiz{}, fmt.Errorf("%w: %v", model.ErrInvalidQuiz, err)
	}
	if err := sch.Validate(doc); err != nil {
		return model.Quiz{}, fmt.Errorf("%w: %v", model.ErrInvalidQuiz, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return model.Quiz{}, fmt.Errorf("%w: %v", model.ErrInvalidQuiz, err)
	}

	quiz := model.Quiz{
		Subject:   strings.TrimSpace(f.Subject),
		Week:      strings.TrimSpace(f.Week),
		Questions: make([]model.QuizQuestion, 0, len(f.Questions)),
	}
	for _, q := range f.Questions {
		rubric, err := renderRubric(q.rubric())
		if err != nil {
			return model.Quiz{}, fmt.Errorf("%w: question %q: %v", model.ErrInvalidQuiz, q.Question, err)
		}
		quiz.Questions = append(quiz.Questions, model.QuizQuestion{
			ID:       q.ID,
			Question: q.Question,
			Context:  q.Context,
			Rubric:   rubric,
		})
	}
	quiz.Questions, err = model.NormalizeQuestions(quiz.Questions)
	if err != nil {
		return model.Quiz{}, err
	}
	return quiz, nil
}

// renderRubric turns a rubric value into the text shown to the grader.
func renderRubric(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var items []Criterion
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", err
	}
	return RenderCriteria(items), nil
}

// RenderCriteria formats criteria as a bullet list, one per line.
func RenderCriteria(items []Criterion) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := "- " + strings.TrimSpace(it.Criterion)
		if it.Marks > 0 {
			unit := "marks"
			if it.Marks == 1 {
				unit = "mark"
			}
			line += " (" + strconv.FormatFloat(it.Marks, 'f', -1, 64) + " " + unit + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Sink is where imported quizzes go.
type Sink interface {
	PutQuiz(ctx context.Context, quiz model.Quiz) error
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// HashKey names the metadata entry holding the hash of the last import of
// a quiz.
type HashKey func(subject, week string) string

// Result describes one imported file.
type Result struct {
	Path      string
	Subject   string
	Week      string
	Questions int
	Skipped   bool // content identical to the last import
}

// Import reads each file, finalizes its quiz in dst and records the file
// hash. A file whose hash matches the last import of the same quiz is
// skipped. A changed file replaces the stored quiz.
func Import(ctx context.Context, dst Sink, hashKey HashKey, paths ...string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return results, fmt.Errorf("read %s: %w", path, err)
		}
		quiz, err := Parse(data)
		if err != nil {
			return results, fmt.Errorf("parse %s: %w", path, err)
		}
		res := Result{Path: path, Subject: quiz.Subject, Week: quiz.Week, Questions: len(quiz.Questions)}

		hash := Hash(data)
		key := hashKey(quiz.Subject, quiz.Week)
		stored, err := dst.GetMetadata(ctx, key)
		if err != nil {
			return results, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if stored == hash {
			slog.Info("quiz file unchanged, skipping", "path", path, "subject", quiz.Subject, "week", quiz.Week)
			res.Skipped = true
			results = append(results, res)
			continue
		}

		if err := dst.PutQuiz(ctx, quiz); err != nil {
			return results, fmt.Errorf("store quiz from %s: %w", path, err)
		}
		if err := dst.SetMetadata(ctx, key, hash); err != nil {
			return results, fmt.Errorf("record import for %s: %w", path, err)
		}
		if stored != "" {
			slog.Info("quiz file changed, replaced previous version", "path", path,
				"subject", quiz.Subject, "week", quiz.Week)
		}
		slog.Info("imported quiz", "path", path, "subject", quiz.Subject, "week", quiz.Week,
			"questions", len(quiz.Questions))
		results = append(results, res)
	}
	return results, nil
}
