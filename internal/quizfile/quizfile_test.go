package quizfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/quiztutor/internal/model"
)

func TestParse(t *testing.T) {
	data, err := os.ReadFile("testdata/cyber_week1.json")
	if err != nil {
		t.Fatal(err)
	}

	quiz, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if quiz.Subject != "cyber" || quiz.Week != "week1" {
		t.Errorf("quiz = %s/%s", quiz.Subject, quiz.Week)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(quiz.Questions))
	}
	want := "- Filters traffic by rules (1 mark)\n- Mentions network boundary (0.5 marks)"
	if quiz.Questions[0].Rubric != want {
		t.Errorf("rubric = %q, want %q", quiz.Questions[0].Rubric, want)
	}
	if quiz.Questions[1].Rubric != "Encrypted tunnel between endpoints (2 marks)" {
		t.Errorf("text rubric = %q", quiz.Questions[1].Rubric)
	}
}

func TestParseAssignsIDs(t *testing.T) {
	quiz, err := Parse([]byte(`{"subject": "s", "week": "w", "questions": [
		{"question": "First?"}, {"question": "Second?"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if quiz.Questions[0].ID != 1 || quiz.Questions[1].ID != 2 {
		t.Errorf("ids = %d, %d", quiz.Questions[0].ID, quiz.Questions[1].ID)
	}
}

func TestParseAnswerKeyAsRubric(t *testing.T) {
	quiz, err := Parse([]byte(`{"subject": "cyber", "week": "week1", "questions": [
		{"id": 1, "question": "What is a firewall?", "answer": [{"criterion": "Filters traffic", "marks": 2}]},
		{"id": 2, "question": "What is a VPN?", "answer": "Encrypted tunnel"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := quiz.Questions[0].Rubric; got != "- Filters traffic (2 marks)" {
		t.Errorf("rubric from answer list = %q", got)
	}
	if got := quiz.Questions[1].Rubric; got != "Encrypted tunnel" {
		t.Errorf("rubric from answer text = %q", got)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing week", `{"subject": "s", "questions": [{"question": "Q"}]}`},
		{"no questions", `{"subject": "s", "week": "w", "questions": []}`},
		{"empty question", `{"subject": "s", "week": "w", "questions": [{"question": ""}]}`},
		{"bad rubric type", `{"subject": "s", "week": "w", "questions": [{"question": "Q", "rubric": 5}]}`},
		{"criterion without text", `{"subject": "s", "week": "w", "questions": [{"question": "Q", "rubric": [{"marks": 1}]}]}`},
		{"rubric and answer", `{"subject": "s", "week": "w", "questions": [{"question": "Q", "rubric": "a", "answer": "b"}]}`},
		{"bad answer type", `{"subject": "s", "week": "w", "questions": [{"question": "Q", "answer": 5}]}`},
		{"ids out of order", `{"subject": "s", "week": "w", "questions": [{"id": 2, "question": "Q"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, model.ErrInvalidQuiz) {
				t.Errorf("expected ErrInvalidQuiz, got %v", err)
			}
		})
	}
}

func TestRenderCriteria(t *testing.T) {
	got := RenderCriteria([]Criterion{{Criterion: " Names a protocol "}, {Criterion: "Explains ports", Marks: 2}})
	want := "- Names a protocol\n- Explains ports (2 marks)"
	if got != want {
		t.Errorf("RenderCriteria = %q, want %q", got, want)
	}
}

type memSink struct {
	quizzes  map[string]model.Quiz
	meta     map[string]string
	putCalls int
}

func newMemSink() *memSink {
	return &memSink{quizzes: map[string]model.Quiz{}, meta: map[string]string{}}
}

func (m *memSink) PutQuiz(_ context.Context, q model.Quiz) error {
	m.putCalls++
	m.quizzes[q.Subject+"/"+q.Week] = q
	return nil
}

func (m *memSink) GetMetadata(_ context.Context, key string) (string, error) {
	return m.meta[key], nil
}

func (m *memSink) SetMetadata(_ context.Context, key, value string) error {
	m.meta[key] = value
	return nil
}

func hashKey(subject, week string) string { return "hash:" + subject + "/" + week }

func TestImportSkipsUnchangedFile(t *testing.T) {
	sink := newMemSink()
	ctx := context.Background()
	path := "testdata/cyber_week1.json"

	res, err := Import(ctx, sink, hashKey, path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res) != 1 || res[0].Skipped || res[0].Questions != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = Import(ctx, sink, hashKey, path)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if !res[0].Skipped {
		t.Error("expected unchanged file to be skipped")
	}
	if sink.putCalls != 1 {
		t.Errorf("PutQuiz called %d times, want 1", sink.putCalls)
	}
}

func TestImportReplacesChangedFile(t *testing.T) {
	sink := newMemSink()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quiz.json")

	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(`{"subject": "s", "week": "w", "questions": [{"question": "Old?"}]}`)
	if _, err := Import(ctx, sink, hashKey, path); err != nil {
		t.Fatalf("Import: %v", err)
	}
	write(`{"subject": "s", "week": "w", "questions": [{"question": "New?"}, {"question": "Another?"}]}`)
	if _, err := Import(ctx, sink, hashKey, path); err != nil {
		t.Fatalf("Import: %v", err)
	}

	q := sink.quizzes["s/w"]
	if len(q.Questions) != 2 || q.Questions[0].Question != "New?" {
		t.Errorf("quiz not replaced: %+v", q)
	}
}

func TestImportMissingFile(t *testing.T) {
	if _, err := Import(context.Background(), newMemSink(), hashKey, "testdata/nope.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
