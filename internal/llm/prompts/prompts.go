package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/quiztutor/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes bounds how much student text is sent to the oracle.
const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict expects precise, complete answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards partial understanding.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	mu             sync.RWMutex
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	Question    string
	Context     string
	Rubric      string
	Exploration bool
}

// Load parses the built-in templates. It is called lazily by
// BuildGradePrompt, so callers only need it to fail fast at startup.
func Load() error {
	return LoadFS(embedded)
}

// LoadFS parses grade_<variant>.txt for every variant from
// templates/ in fsys, replacing any previously loaded set.
func LoadFS(fsys fs.FS) error {
	loaded := make(map[PromptVariant]*template.Template, len(variants))
	for _, v := range variants {
		name := "templates/grade_" + string(v) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read prompt file %s: %w", name, err)
		}
		tmpl, err := template.New(string(v)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		loaded[v] = tmpl
	}
	mu.Lock()
	gradeTemplates = loaded
	mu.Unlock()
	return nil
}

func templateFor(variant PromptVariant) (*template.Template, error) {
	mu.RLock()
	loaded := gradeTemplates
	mu.RUnlock()
	if loaded == nil {
		if err := Load(); err != nil {
			return nil, err
		}
		mu.RLock()
		loaded = gradeTemplates
		mu.RUnlock()
	}
	tmpl, ok := loaded[variant]
	if !ok {
		return nil, errors.New("invalid prompt variant: " + string(variant))
	}
	return tmpl, nil
}

// BuildGradePrompt renders the system prompt for variant and wraps the
// student's text as the user message.
func BuildGradePrompt(variant PromptVariant, req model.GradeRequest) (system, user string, err error) {
	tmpl, err := templateFor(variant)
	if err != nil {
		return "", "", err
	}

	data := GradeData{
		Question:    req.Question.Question,
		Context:     strings.TrimSpace(req.Question.Context),
		Rubric:      strings.TrimSpace(req.Question.Rubric),
		Exploration: req.Exploration,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s prompt: %w", variant, err)
	}

	user = "<student-answer>\n" + sanitizeAnswer(req.StudentText) + "\n</student-answer>"
	return buf.String(), user, nil
}

// sanitizeAnswer strips delimiter tags a student could use to break out of
// the answer block and bounds the length.
func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
